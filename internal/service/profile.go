package service

import (
	"context"
	"fmt"
	"net/http"

	"consultbot/internal/models"
	"consultbot/internal/session"
)

// Profile возвращает профиль пользователя (GET /profile/).
func (s *Service) Profile(ctx context.Context, id int64) (*models.Profile, error) {
	const op = "service.Profile"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodGet,
		Path:   "/profile/",
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	var profile models.Profile
	if err := resp.Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &profile, nil
}

// Role определяет роль пользователя. Пустая строка без ошибки означает
// «роль неизвестна» — например, платформа вернула неожиданное значение.
func (s *Service) Role(ctx context.Context, id int64) (string, error) {
	const op = "service.Role"

	profile, err := s.Profile(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	switch profile.Role {
	case models.RoleStudent, models.RoleTeacher:
		return profile.Role, nil
	}

	return "", nil
}

// TeacherStatus возвращает статус преподавательской заявки
// (пустая строка — пользователь не преподаватель).
func (s *Service) TeacherStatus(ctx context.Context, id int64) (string, error) {
	const op = "service.TeacherStatus"

	profile, err := s.Profile(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if !profile.IsTeacher() {
		return "", nil
	}

	return profile.Status, nil
}

// UpdateName меняет имя и фамилию в профиле (PUT /profile/).
func (s *Service) UpdateName(ctx context.Context, id int64, firstName, lastName string) error {
	const op = "service.UpdateName"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPut,
		Path:   "/profile/",
		Body: map[string]string{
			"first_name": firstName,
			"last_name":  lastName,
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	return nil
}

// ResubmitApproval повторно отправляет преподавательскую заявку
// (POST /profile/approval/resubmit/).
func (s *Service) ResubmitApproval(ctx context.Context, id int64) error {
	const op = "service.ResubmitApproval"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPost,
		Path:   "/profile/approval/resubmit/",
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !resp.OK() {
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}

	return nil
}
