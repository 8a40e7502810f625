package session

import "errors"

// Закрытый набор типизированных ошибок сессионного слоя.
// Слои выше (хендлеры бота) ветвятся по ним через errors.Is и сами
// решают, что показать пользователю; session текстов для чата не порождает.
var (
	// ErrNotRegistered — у пользователя нет аккаунта на платформе
	// (логин/refresh вернул 404). Локальные токены уже вычищены;
	// вызывающий обязан отправить пользователя на регистрацию.
	ErrNotRegistered = errors.New("user not registered")

	// ErrRegistrationRejected — платформа отклонила анкету регистрации (400).
	// Сообщение сервера доступно через errors.As к RejectionError.
	ErrRegistrationRejected = errors.New("registration rejected")

	// ErrAuthExpired — refresh-токен недействителен и автоматический
	// повторный вход не удался (по причине, отличной от «нет аккаунта»).
	// Пользователю требуется заново авторизоваться.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrConnection — сетевая ошибка или таймаут при обращении к платформе.
	ErrConnection = errors.New("platform connection error")

	// ErrMalformedResponse — платформа вернула не-JSON или неожиданную форму.
	ErrMalformedResponse = errors.New("malformed platform response")
)

// RejectionError несёт текст причины отказа в регистрации,
// извлечённый из тела ответа платформы.
type RejectionError struct {
	// Reason — сообщение сервера как есть; перевод и оформление —
	// забота слоя представления.
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return ErrRegistrationRejected.Error()
	}

	return "registration rejected: " + e.Reason
}

// Is делает RejectionError совместимым с errors.Is(err, ErrRegistrationRejected).
func (e *RejectionError) Is(target error) bool {
	return target == ErrRegistrationRejected
}
