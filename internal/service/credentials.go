package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"consultbot/internal/session"
)

// AddCredentials добавляет учётные данные деканата
// (POST /auth/credentials/add/). На 400 возвращает ErrCredentialsRejected
// с причиной сервера.
func (s *Service) AddCredentials(ctx context.Context, id int64, email, password string) error {
	const op = "service.AddCredentials"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPost,
		Path:   "/auth/credentials/add/",
		Body: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.OK():
		return nil
	case resp.Status == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, ErrCredentialsRejected, session.ErrorMessage(resp.Body))
	default:
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}
}

// ChangeEmail меняет e-mail учётных данных (PUT /profile/change/email/).
// 403 означает, что учётные данные ещё не заведены.
func (s *Service) ChangeEmail(ctx context.Context, id int64, newEmail string) error {
	const op = "service.ChangeEmail"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPut,
		Path:   "/profile/change/email/",
		Body:   map[string]string{"new_email": newEmail},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.OK():
		return nil
	case resp.Status == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, ErrCredentialsRejected, session.ErrorMessage(resp.Body))
	case resp.Status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrNoCredentials)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}
}

// ChangePassword меняет пароль учётных данных (PUT /profile/change/password/).
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	const op = "service.ChangePassword"

	resp, err := s.sessions.Do(ctx, id, session.Request{
		Method: http.MethodPut,
		Path:   "/profile/change/password/",
		Body: map[string]string{
			"current_password": current,
			"new_password":     next,
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.OK():
		return nil
	case resp.Status == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, ErrCredentialsRejected, session.ErrorMessage(resp.Body))
	case resp.Status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrNoCredentials)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, resp.Status)
	}
}

// HasDeanCredentials — признак, что у пользователя есть настоящие учётные
// данные: e-mail в профиле не из служебного домена telegram.local.
func (s *Service) HasDeanCredentials(ctx context.Context, id int64) bool {
	profile, err := s.Profile(ctx, id)
	if err != nil {
		return false
	}

	return profile.Email != "" && !strings.HasSuffix(profile.Email, "@telegram.local")
}
