package models

// Task — задача из списка дел пользователя (эндпойнты /todo/).
type Task struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	// Deadline — строка в формате платформы (ISO 8601); бот её не разбирает.
	Deadline   string   `json:"deadline,omitempty"`
	Status     string   `json:"status,omitempty"`
	AssigneeID int64    `json:"assignee_id,omitempty"`
	Reminders  []string `json:"reminders,omitempty"`
}

// TaskPage — страница списка задач.
type TaskPage struct {
	Results     []Task `json:"results"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
}

// TaskPatch — частичное обновление задачи (PATCH /todo/{id}/).
// Nil-поля в запрос не попадают.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Deadline    *string   `json:"deadline,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Reminders   *[]string `json:"reminders,omitempty"`
}
