package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"consultbot/internal/models"
	"consultbot/internal/session"
)

// Teachers возвращает страницу справочника преподавателей (GET /teachers/).
// page — нулевая (как в клавиатурах пагинации); платформа нумерует
// страницы с единицы, конвертация выполняется здесь.
func (s *Service) Teachers(ctx context.Context, id int64, page, pageSize int) (*models.TeacherPage, error) {
	const op = "service.Teachers"

	query := url.Values{}
	query.Set("page", strconv.Itoa(page+1))
	query.Set("page_size", strconv.Itoa(pageSize))

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodGet,
		Path:   "/teachers/",
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	result := models.TeacherPage{TotalPages: 1}
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Обратно к нулевой нумерации.
	if result.CurrentPage > 0 {
		result.CurrentPage--
	}

	return &result, nil
}
