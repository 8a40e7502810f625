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

// Consultations возвращает страницу доступных консультаций
// (GET /consultations/).
func (s *Service) Consultations(ctx context.Context, id int64, page, pageSize int) (*models.ConsultationPage, error) {
	const op = "service.Consultations"

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodGet,
		Path:   "/consultations/",
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	result := models.ConsultationPage{CurrentPage: page, TotalPages: 1}
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &result, nil
}

// BookConsultation записывает пользователя на консультацию
// (POST /consultations/{id}/book/) с текстом запроса.
func (s *Service) BookConsultation(ctx context.Context, id, consultationID int64, message string) error {
	const op = "service.BookConsultation"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/consultations/%d/book/", consultationID),
		Body:   map[string]string{"message": message},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.Status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case !resp.OK():
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	return nil
}
