package models

// Consultation — слот консультации преподавателя.
type Consultation struct {
	ID       int64  `json:"id"`
	Teacher  string `json:"teacher,omitempty"`
	StartsAt string `json:"starts_at,omitempty"`
	EndsAt   string `json:"ends_at,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ConsultationPage — страница списка консультаций.
type ConsultationPage struct {
	Results     []Consultation `json:"results"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
}

// Teacher — запись справочника преподавателей (GET /teachers/).
type Teacher struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// TeacherPage — страница справочника преподавателей.
// CurrentPage здесь нулевая (для клавиатур пагинации),
// хотя API платформы нумерует страницы с единицы.
type TeacherPage struct {
	Results     []Teacher `json:"results"`
	CurrentPage int       `json:"current_page"`
	TotalPages  int       `json:"total_pages"`
}
