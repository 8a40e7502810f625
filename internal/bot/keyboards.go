package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"consultbot/internal/help"
	"consultbot/internal/models"
)

// callback-данные меню.
const (
	cbRegister         = "start"
	cbMenuProfile      = "menu_profile"
	cbMenuLogout       = "menu_logout"
	cbMenuHelp         = "menu_help"
	cbMenuTasks        = "menu_tasks"
	cbMenuTeachers     = "menu_teachers"
	cbMenuConsults     = "menu_consultations"
	cbBackToMenu       = "back_to_menu"
	cbTaskCreate       = "task_create"
	cbCredentialsAdd   = "credentials_add"
	cbApprovalResubmit = "approval_resubmit"
	cbNameEdit         = "name_edit"
	cbEmailChange      = "email_change"
	cbPasswordChange   = "password_change"

	cbHelpSectionPrefix = "help_section:"
	cbRolePrefix        = "role_"
	cbTasksPagePrefix   = "tasks_page_"
	cbTeachersPage      = "teachers_page_"
	cbConsultsPage      = "consults_page_"
	cbBookPrefix        = "book_"
	// cbTaskDonePrefix и cbTaskDeletePrefix разбираются раньше cbTaskPrefix,
	// иначе "task_done_7" попадёт в карточку задачи.
	cbTaskDonePrefix   = "task_done_"
	cbTaskDeletePrefix = "task_delete_"
	cbTaskPrefix       = "task_"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

// guestMenu — меню незарегистрированного пользователя.
func guestMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("🔑 Регистрация / Вход", cbRegister)),
		tgbotapi.NewInlineKeyboardRow(button("❓ Справка", cbMenuHelp)),
	)
}

func studentMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("👨‍🏫 Преподаватели", cbMenuTeachers),
			button("📅 Консультации", cbMenuConsults),
		),
		tgbotapi.NewInlineKeyboardRow(button("📝 Мои задачи", cbMenuTasks)),
		tgbotapi.NewInlineKeyboardRow(
			button("👤 Профиль", cbMenuProfile),
			button("🚪 Выйти", cbMenuLogout),
		),
		tgbotapi.NewInlineKeyboardRow(button("❓ Справка", cbMenuHelp)),
	)
}

func teacherMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("📅 Мои консультации", cbMenuConsults)),
		tgbotapi.NewInlineKeyboardRow(button("📝 Мои задачи", cbMenuTasks)),
		tgbotapi.NewInlineKeyboardRow(
			button("👤 Профиль", cbMenuProfile),
			button("🚪 Выйти", cbMenuLogout),
		),
		tgbotapi.NewInlineKeyboardRow(button("❓ Справка", cbMenuHelp)),
	)
}

// teacherPendingMenu — преподаватель с нерассмотренной заявкой.
func teacherPendingMenu(status string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			button("👤 Профиль", cbMenuProfile),
			button("🚪 Выйти", cbMenuLogout),
		),
	}
	if status == models.TeacherStatusRejected {
		rows = append([][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(button("🔄 Отправить заявку повторно", cbApprovalResubmit)),
		}, rows...)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("❓ Справка", cbMenuHelp)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// mainMenu подбирает меню под роль и статус преподавательской заявки.
func mainMenu(role, teacherStatus string) tgbotapi.InlineKeyboardMarkup {
	switch {
	case role == models.RoleStudent:
		return studentMenu()
	case role == models.RoleTeacher && teacherStatus == models.TeacherStatusActive:
		return teacherMenu()
	case role == models.RoleTeacher:
		return teacherPendingMenu(teacherStatus)
	default:
		return guestMenu()
	}
}

func roleMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("🎓 Студент", cbRolePrefix+models.RoleStudent),
			button("👨‍🏫 Преподаватель", cbRolePrefix+models.RoleTeacher),
		),
	)
}

func helpMenu(sections []help.Section) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(sections)+1)
	for _, section := range sections {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(section.Title, cbHelpSectionPrefix+section.Key),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// helpPage — навигация между соседними разделами справки.
func helpPage(sections []help.Section, currentKey string) tgbotapi.InlineKeyboardMarkup {
	idx := 0
	for i, section := range sections {
		if section.Key == currentKey {
			idx = i
			break
		}
	}

	var nav []tgbotapi.InlineKeyboardButton
	if idx > 0 {
		nav = append(nav, button("⬅️ Назад", cbHelpSectionPrefix+sections[idx-1].Key))
	}
	if idx < len(sections)-1 {
		nav = append(nav, button("Вперёд ➡️", cbHelpSectionPrefix+sections[idx+1].Key))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// paginated строит клавиатуру списка с кнопками навигации по страницам.
// page — нулевая.
func paginated(labels []string, data []string, page, totalPages int, pagePrefix string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(labels)+2)
	for i := range labels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(labels[i], data[i])))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, button("⬅️ Назад", fmt.Sprintf("%s%d", pagePrefix, page-1)))
	}
	if page < totalPages-1 {
		nav = append(nav, button("Вперёд ➡️", fmt.Sprintf("%s%d", pagePrefix, page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func tasksMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("➕ Новая задача", cbTaskCreate)),
		tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)),
	)
}

// profileMenu — смена email и пароля доступна только тем, у кого уже есть
// доступ к веб-версии.
func profileMenu(hasCredentials bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(button("✏️ Изменить имя", cbNameEdit)),
	}
	if hasCredentials {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("📧 Сменить email", cbEmailChange),
			button("🔑 Сменить пароль", cbPasswordChange),
		))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("🔐 Добавить доступ к веб-версии", cbCredentialsAdd),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// taskDetailMenu — действия над открытой задачей.
func taskDetailMenu(taskID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("✅ Выполнена", fmt.Sprintf("%s%d", cbTaskDonePrefix, taskID)),
			button("🗑 Удалить", fmt.Sprintf("%s%d", cbTaskDeletePrefix, taskID)),
		),
		tgbotapi.NewInlineKeyboardRow(button("📝 К списку задач", cbMenuTasks)),
		tgbotapi.NewInlineKeyboardRow(button("🔙 Назад в меню", cbBackToMenu)),
	)
}
