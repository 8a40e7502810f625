// service содержит фичевые обёртки над сессионным слоем: профиль,
// задачи, консультации, справочник преподавателей и учётные данные
// деканата. Каждая операция — один-два авторизованных вызова платформы
// через session.Manager.Do; вся механика токенов скрыта ниже.
//
// Ошибки сессионного слоя (session.Err*) пробрасываются наверх как есть —
// по ним ветвятся хендлеры бота. Бизнес-статусы платформы (404/409/400)
// интерпретируются здесь, по месту.
package service

import (
	"errors"

	"consultbot/internal/session"
)

var (
	// ErrNotFound — платформа ответила 404 на бизнес-запрос
	// (задача/консультация не существует или не принадлежит пользователю).
	ErrNotFound = errors.New("resource not found")

	// ErrNoCredentials — у пользователя не заведены учётные данные деканата
	// (платформа ответила 403 на операцию с ними).
	ErrNoCredentials = errors.New("dean credentials not set")

	// ErrCredentialsRejected — платформа отклонила учётные данные (400);
	// причина сервера — в обёртке ошибки.
	ErrCredentialsRejected = errors.New("credentials rejected")
)

// Service — фасад фич бота.
type Service struct {
	sessions *session.Manager
}

// New создаёт фасад поверх менеджера сессий.
func New(sessions *session.Manager) *Service {
	return &Service{sessions: sessions}
}

// Sessions отдаёт менеджер сессий (регистрация и logout идут напрямую).
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}
