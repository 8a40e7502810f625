package models

// Роли пользователей платформы.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Статусы преподавательской заявки.
const (
	TeacherStatusActive   = "active"
	TeacherStatusPending  = "pending"
	TeacherStatusRejected = "rejected"
)

// Profile — профиль пользователя, как его отдаёт GET /profile/.
type Profile struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	// Status заполняется только для преподавателей.
	Status string `json:"status,omitempty"`
}

// IsTeacher — пользователь имеет роль преподавателя.
func (p Profile) IsTeacher() bool { return p.Role == RoleTeacher }

// RegisterForm — данные анкеты регистрации нового аккаунта.
type RegisterForm struct {
	Username    string `json:"username"`
	TelegramID  int64  `json:"telegram_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}
