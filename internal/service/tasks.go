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

// CreateTask создаёт задачу (POST /todo/). Необязательные поля
// (дедлайн, исполнитель, напоминания) берутся из task, если заполнены.
func (s *Service) CreateTask(ctx context.Context, id int64, task models.Task) (*models.Task, error) {
	const op = "service.CreateTask"

	payload := map[string]any{
		"title":       task.Title,
		"description": task.Description,
	}
	if task.Deadline != "" {
		payload["deadline"] = task.Deadline
	}
	if task.AssigneeID != 0 {
		payload["assignee_id"] = task.AssigneeID
	}
	if task.Reminders != nil {
		payload["reminders"] = task.Reminders
	}

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPost,
		Path:   "/todo/",
		Body:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	var created models.Task
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &created, nil
}

// Tasks возвращает страницу списка задач (GET /todo/all/).
// status фильтрует по статусу, пустая строка — без фильтра.
func (s *Service) Tasks(ctx context.Context, id int64, page, pageSize int, status string) (*models.TaskPage, error) {
	const op = "service.Tasks"

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	if status != "" {
		query.Set("status", status)
	}

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodGet,
		Path:   "/todo/all/",
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	result := models.TaskPage{CurrentPage: page, TotalPages: 1}
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &result, nil
}

// Task возвращает детали задачи (GET /todo/{id}/).
func (s *Service) Task(ctx context.Context, id, taskID int64) (*models.Task, error) {
	const op = "service.Task"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/todo/%d/", taskID),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.Status == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case !resp.OK():
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	var task models.Task
	if err := resp.Decode(&task); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &task, nil
}

// UpdateTask частично обновляет задачу (PATCH /todo/{id}/).
func (s *Service) UpdateTask(ctx context.Context, id, taskID int64, patch models.TaskPatch) (*models.Task, error) {
	const op = "service.UpdateTask"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/todo/%d/", taskID),
		Body:   patch,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.Status == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case !resp.OK():
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	var task models.Task
	if err := resp.Decode(&task); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &task, nil
}

// DeleteTask удаляет задачу (DELETE /todo/{id}/).
func (s *Service) DeleteTask(ctx context.Context, id, taskID int64) error {
	const op = "service.DeleteTask"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/todo/%d/", taskID),
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
