package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"consultbot/internal/models"
	logctx "consultbot/internal/pkg/log"
	"consultbot/internal/pkg/redact"
	"consultbot/internal/service"
	"consultbot/internal/session"
)

const pageSize = 5

// errorText переводит ошибку сессионного и фичевого слоёв в сообщение
// пользователю.
func errorText(err error) string {
	var rejection *session.RejectionError
	switch {
	case errors.As(err, &rejection):
		if rejection.Reason != "" {
			return "❌ Регистрация отклонена: " + rejection.Reason
		}
		return "❌ Регистрация отклонена."
	case errors.Is(err, session.ErrNotRegistered):
		return "Вы не зарегистрированы. Нажмите «Регистрация / Вход»."
	case errors.Is(err, session.ErrAuthExpired):
		return "Сессия истекла. Попробуйте ещё раз."
	case errors.Is(err, session.ErrConnection):
		return "⚠️ Платформа недоступна. Попробуйте позже."
	case errors.Is(err, service.ErrNotFound):
		return "Запись не найдена — возможно, её уже удалили."
	case errors.Is(err, service.ErrNoCredentials):
		return "Сначала добавьте доступ к веб-версии в профиле."
	case errors.Is(err, service.ErrCredentialsRejected):
		return "❌ Данные не приняты: " + err.Error()
	default:
		return "Что-то пошло не так. Попробуйте позже."
	}
}

// resolveRole определяет роль и статус преподавательской заявки.
// Незарегистрированный пользователь — гость (пустая роль, без ошибки).
func (b *Bot) resolveRole(ctx context.Context, id int64) (role, status string, err error) {
	role, err = b.svc.Role(ctx, id)
	if errors.Is(err, session.ErrNotRegistered) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}

	if role == models.RoleTeacher {
		status, err = b.svc.TeacherStatus(ctx, id)
		if err != nil {
			return "", "", err
		}
	}

	return role, status, nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.states.finish(chatID)
		switch msg.Command() {
		case "start", "home":
			b.showMainMenu(ctx, chatID, msg.From.ID, 0)
		case "help":
			b.showHelpMenu(ctx, chatID, msg.From.ID, 0)
		case "register":
			b.startRegistration(ctx, chatID)
		default:
			b.send(ctx, chatID, "Неизвестная команда. Наберите /start.", nil)
		}
		return
	}

	if conv := b.states.current(chatID); conv != nil {
		b.continueConversation(ctx, msg, conv)
		return
	}

	b.send(ctx, chatID, "Наберите /start, чтобы открыть меню.", nil)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	userID := cq.From.ID
	messageID := cq.Message.MessageID
	data := cq.Data

	b.answer(ctx, cq.ID)

	switch {
	case data == cbRegister:
		b.startRegistration(ctx, chatID)
	case strings.HasPrefix(data, cbRolePrefix):
		b.completeRegistration(ctx, cq, strings.TrimPrefix(data, cbRolePrefix))
	case data == cbBackToMenu:
		b.states.finish(chatID)
		b.showMainMenu(ctx, chatID, userID, messageID)
	case data == cbMenuHelp:
		b.showHelpMenu(ctx, chatID, userID, messageID)
	case strings.HasPrefix(data, cbHelpSectionPrefix):
		b.showHelpSection(ctx, chatID, userID, messageID, strings.TrimPrefix(data, cbHelpSectionPrefix))
	case data == cbMenuProfile:
		b.showProfile(ctx, chatID, userID, messageID)
	case data == cbMenuLogout:
		b.logout(ctx, chatID, userID, messageID)
	case data == cbMenuTasks:
		b.showTasks(ctx, chatID, userID, messageID, 0)
	case strings.HasPrefix(data, cbTasksPagePrefix):
		b.showTasks(ctx, chatID, userID, messageID, parsePage(data, cbTasksPagePrefix))
	case data == cbTaskCreate:
		b.states.begin(chatID, stepTaskTitle)
		b.send(ctx, chatID, "📝 Название задачи:", nil)
	case data == cbMenuTeachers:
		b.showTeachers(ctx, chatID, userID, messageID, 0)
	case strings.HasPrefix(data, cbTeachersPage):
		b.showTeachers(ctx, chatID, userID, messageID, parsePage(data, cbTeachersPage))
	case data == cbMenuConsults:
		b.showConsultations(ctx, chatID, userID, messageID, 0)
	case strings.HasPrefix(data, cbConsultsPage):
		b.showConsultations(ctx, chatID, userID, messageID, parsePage(data, cbConsultsPage))
	case strings.HasPrefix(data, cbBookPrefix):
		b.states.begin(chatID, stepBookingMessage)
		b.states.set(chatID, "consultation_id", strings.TrimPrefix(data, cbBookPrefix))
		b.send(ctx, chatID, "✍️ Опишите, с чем нужна помощь:", nil)
	case data == cbCredentialsAdd:
		b.states.begin(chatID, stepCredentialsEmail)
		b.send(ctx, chatID, "🔐 Введите email для веб-версии:", nil)
	case data == cbNameEdit:
		b.states.begin(chatID, stepNameFirst)
		b.send(ctx, chatID, "✏️ Введите имя:", nil)
	case data == cbEmailChange:
		b.states.begin(chatID, stepEmailNew)
		b.send(ctx, chatID, "📧 Введите новый email:", nil)
	case data == cbPasswordChange:
		b.states.begin(chatID, stepPasswordCurrent)
		b.send(ctx, chatID, "🔑 Введите текущий пароль:", nil)
	case strings.HasPrefix(data, cbTaskDonePrefix):
		b.completeTask(ctx, chatID, userID, messageID, parseID(data, cbTaskDonePrefix))
	case strings.HasPrefix(data, cbTaskDeletePrefix):
		b.deleteTask(ctx, chatID, userID, messageID, parseID(data, cbTaskDeletePrefix))
	case strings.HasPrefix(data, cbTaskPrefix):
		b.showTask(ctx, chatID, userID, messageID, parseID(data, cbTaskPrefix))
	case data == cbApprovalResubmit:
		b.resubmitApproval(ctx, chatID, userID, messageID)
	default:
		logctx.From(ctx).Warn("unknown_callback", slog.String("data", data))
	}
}

func parsePage(data, prefix string) int {
	page, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

// parseID достаёт идентификатор записи из callback-данных; 0 — мусор.
func parseID(data, prefix string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// showMainMenu рисует главное меню под роль пользователя.
// messageID > 0 — правим существующее сообщение, иначе шлём новое.
func (b *Bot) showMainMenu(ctx context.Context, chatID, userID int64, messageID int) {
	role, status, err := b.resolveRole(ctx, userID)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	greeting := "Здравствуйте! Зарегистрируйтесь, чтобы пользоваться ботом."
	if role != "" {
		if profile, err := b.svc.Profile(ctx, userID); err == nil {
			greeting = fmt.Sprintf("Добро пожаловать, %s %s.", profile.FirstName, profile.LastName)
		}
	}
	if role == models.RoleTeacher && status == models.TeacherStatusPending {
		greeting += "\n\n⏳ Ваша заявка преподавателя ещё на рассмотрении."
	}
	if role == models.RoleTeacher && status == models.TeacherStatusRejected {
		greeting += "\n\n❌ Ваша заявка преподавателя отклонена."
	}

	keyboard := mainMenu(role, status)
	if messageID > 0 {
		b.edit(ctx, chatID, messageID, greeting, &keyboard)
	} else {
		b.send(ctx, chatID, greeting, &keyboard)
	}
}

// --- справка ---

func (b *Bot) showHelpMenu(ctx context.Context, chatID, userID int64, messageID int) {
	role, status, err := b.resolveRole(ctx, userID)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	keyboard := helpMenu(b.help.Sections(ctx, role, status))
	text := "❓ Справка — выберите раздел:"
	if messageID > 0 {
		b.edit(ctx, chatID, messageID, text, &keyboard)
	} else {
		b.send(ctx, chatID, text, &keyboard)
	}
}

func (b *Bot) showHelpSection(ctx context.Context, chatID, userID int64, messageID int, key string) {
	role, status, err := b.resolveRole(ctx, userID)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	text := b.help.SectionText(ctx, key)
	if text == "" {
		text = "Раздел не найден."
	}

	keyboard := helpPage(b.help.Sections(ctx, role, status), key)
	b.edit(ctx, chatID, messageID, text, &keyboard)
}

// --- регистрация ---

func (b *Bot) startRegistration(ctx context.Context, chatID int64) {
	b.states.begin(chatID, stepRegisterContact)

	keyboard := tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Отправить контакт")),
	)

	msg := tgbotapi.NewMessage(chatID, "Поделитесь контактом для регистрации 👇")
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		logctx.From(ctx).Error("send_failed", slog.String("error", err.Error()))
	}
}

func (b *Bot) processContact(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Contact == nil {
		b.send(ctx, msg.Chat.ID, "Нажмите кнопку «Отправить контакт» ниже.", nil)
		return
	}

	chatID := msg.Chat.ID
	b.states.set(chatID, "phone_number", msg.Contact.PhoneNumber)
	b.states.set(chatID, "first_name", msg.Contact.FirstName)
	b.states.set(chatID, "last_name", msg.Contact.LastName)
	if msg.From.UserName != "" {
		b.states.set(chatID, "username", "@"+msg.From.UserName)
	}
	b.states.advance(chatID, stepRegisterRole)

	// Убираем reply-клавиатуру с кнопкой контакта.
	ok := tgbotapi.NewMessage(msg.Chat.ID, "Успешно ✅")
	ok.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(ok); err != nil {
		logctx.From(ctx).Error("send_failed", slog.String("error", err.Error()))
	}

	keyboard := roleMenu()
	b.send(ctx, msg.Chat.ID, "Выберите вашу роль:", &keyboard)
}

func (b *Bot) completeRegistration(ctx context.Context, cq *tgbotapi.CallbackQuery, role string) {
	chatID := cq.Message.Chat.ID
	userID := cq.From.ID

	conv := b.states.current(chatID)
	if conv == nil || conv.Step != stepRegisterRole {
		b.send(ctx, chatID, "Начните регистрацию заново: /register.", nil)
		return
	}
	b.states.finish(chatID)

	form := models.RegisterForm{
		Username:    conv.Data["username"],
		FirstName:   conv.Data["first_name"],
		LastName:    conv.Data["last_name"],
		PhoneNumber: conv.Data["phone_number"],
		Role:        role,
	}

	if _, err := b.svc.Sessions().Register(ctx, userID, form); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	logctx.From(ctx).Info("registration_completed",
		slog.String("role", role),
		slog.String("phone", redact.Phone(form.PhoneNumber)),
	)
	b.showMainMenu(ctx, chatID, userID, 0)
}

// --- профиль ---

func (b *Bot) showProfile(ctx context.Context, chatID, userID int64, messageID int) {
	profile, err := b.svc.Profile(ctx, userID)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 <b>Профиль</b>\n\n")
	fmt.Fprintf(&sb, "Имя: %s %s\n", profile.FirstName, profile.LastName)
	if profile.Username != "" {
		fmt.Fprintf(&sb, "Telegram: %s\n", profile.Username)
	}
	fmt.Fprintf(&sb, "Телефон: %s\n", profile.PhoneNumber)
	fmt.Fprintf(&sb, "Роль: %s\n", profile.Role)

	hasCredentials := b.svc.HasDeanCredentials(ctx, userID)
	if hasCredentials {
		fmt.Fprintf(&sb, "Email: %s\n", profile.Email)
	}

	keyboard := profileMenu(hasCredentials)
	b.edit(ctx, chatID, messageID, sb.String(), &keyboard)
}

func (b *Bot) updateName(ctx context.Context, chatID, userID int64, firstName, lastName string) {
	b.states.finish(chatID)

	if err := b.svc.UpdateName(ctx, userID, firstName, lastName); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.send(ctx, chatID, fmt.Sprintf("✅ Имя обновлено: %s %s.", firstName, lastName), nil)
}

func (b *Bot) changeEmail(ctx context.Context, chatID, userID int64, email string) {
	b.states.finish(chatID)

	if err := b.svc.ChangeEmail(ctx, userID, email); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	logctx.From(ctx).Info("email_changed", slog.String("email", redact.Email(email)))
	b.send(ctx, chatID, "✅ Email обновлён.", nil)
}

func (b *Bot) changePassword(ctx context.Context, chatID, userID int64, current, next string) {
	b.states.finish(chatID)

	if err := b.svc.ChangePassword(ctx, userID, current, next); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.send(ctx, chatID, "✅ Пароль обновлён.", nil)
}

func (b *Bot) resubmitApproval(ctx context.Context, chatID, userID int64, messageID int) {
	if err := b.svc.ResubmitApproval(ctx, userID); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}
	b.send(ctx, chatID, "✅ Заявка отправлена повторно.", nil)
	b.showMainMenu(ctx, chatID, userID, messageID)
}

func (b *Bot) logout(ctx context.Context, chatID, userID int64, messageID int) {
	b.svc.Sessions().Logout(ctx, userID)
	b.states.finish(chatID)

	keyboard := guestMenu()
	b.edit(ctx, chatID, messageID, "Вы вышли из аккаунта. 👋", &keyboard)
}

// --- задачи ---

func (b *Bot) showTasks(ctx context.Context, chatID, userID int64, messageID int, page int) {
	tasks, err := b.svc.Tasks(ctx, userID, page+1, pageSize, "")
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	if len(tasks.Results) == 0 {
		keyboard := tasksMenu()
		b.edit(ctx, chatID, messageID, "📝 Задач пока нет.", &keyboard)
		return
	}

	labels := make([]string, 0, len(tasks.Results)+1)
	data := make([]string, 0, len(tasks.Results)+1)
	for _, task := range tasks.Results {
		label := task.Title
		if task.Status == "done" {
			label = "✔️ " + label
		}
		labels = append(labels, label)
		data = append(data, fmt.Sprintf("%s%d", cbTaskPrefix, task.ID))
	}
	labels = append(labels, "➕ Новая задача")
	data = append(data, cbTaskCreate)

	text := fmt.Sprintf("📝 <b>Мои задачи</b>\n\nСтраница %d из %d", page+1, tasks.TotalPages)
	keyboard := paginated(labels, data, page, tasks.TotalPages, cbTasksPagePrefix)
	b.edit(ctx, chatID, messageID, text, &keyboard)
}

func (b *Bot) showTask(ctx context.Context, chatID, userID int64, messageID int, taskID int64) {
	task, err := b.svc.Task(ctx, userID, taskID)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 <b>%s</b>\n", task.Title)
	if task.Status != "" {
		fmt.Fprintf(&sb, "\nСтатус: %s", task.Status)
	}
	if task.Deadline != "" {
		fmt.Fprintf(&sb, "\nСрок: %s", task.Deadline)
	}
	if task.Description != "" {
		fmt.Fprintf(&sb, "\n\n%s", task.Description)
	}

	keyboard := taskDetailMenu(task.ID)
	b.edit(ctx, chatID, messageID, sb.String(), &keyboard)
}

func (b *Bot) completeTask(ctx context.Context, chatID, userID int64, messageID int, taskID int64) {
	status := "done"
	if _, err := b.svc.UpdateTask(ctx, userID, taskID, models.TaskPatch{Status: &status}); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.showTasks(ctx, chatID, userID, messageID, 0)
}

func (b *Bot) deleteTask(ctx context.Context, chatID, userID int64, messageID int, taskID int64) {
	if err := b.svc.DeleteTask(ctx, userID, taskID); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.showTasks(ctx, chatID, userID, messageID, 0)
}

func (b *Bot) createTask(ctx context.Context, chatID, userID int64, conv *conversation) {
	b.states.finish(chatID)

	task := models.Task{
		Title:       conv.Data["title"],
		Description: conv.Data["description"],
	}
	created, err := b.svc.CreateTask(ctx, userID, task)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.send(ctx, chatID, fmt.Sprintf("✅ Задача «%s» создана.", created.Title), nil)
	b.showTasks(ctx, chatID, userID, 0, 0)
}

// --- преподаватели ---

func (b *Bot) showTeachers(ctx context.Context, chatID, userID int64, messageID int, page int) {
	teachers, err := b.svc.Teachers(ctx, userID, page, pageSize)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	if len(teachers.Results) == 0 {
		b.edit(ctx, chatID, messageID, "👨‍🏫 Преподавателей пока нет.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("👨‍🏫 <b>Преподаватели</b>\n\n")
	for _, teacher := range teachers.Results {
		fmt.Fprintf(&sb, "• %s %s\n", teacher.FirstName, teacher.LastName)
	}
	fmt.Fprintf(&sb, "\nСтраница %d из %d", teachers.CurrentPage+1, teachers.TotalPages)

	keyboard := paginated(nil, nil, teachers.CurrentPage, teachers.TotalPages, cbTeachersPage)
	b.edit(ctx, chatID, messageID, sb.String(), &keyboard)
}

// --- консультации ---

func (b *Bot) showConsultations(ctx context.Context, chatID, userID int64, messageID int, page int) {
	consultations, err := b.svc.Consultations(ctx, userID, page+1, pageSize)
	if err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	if len(consultations.Results) == 0 {
		b.edit(ctx, chatID, messageID, "📅 Свободных консультаций нет.", nil)
		return
	}

	labels := make([]string, 0, len(consultations.Results))
	data := make([]string, 0, len(consultations.Results))
	for _, c := range consultations.Results {
		labels = append(labels, fmt.Sprintf("%s — %s", c.Teacher, c.StartsAt))
		data = append(data, fmt.Sprintf("%s%d", cbBookPrefix, c.ID))
	}

	keyboard := paginated(labels, data, page, consultations.TotalPages, cbConsultsPage)
	b.edit(ctx, chatID, messageID, "📅 Выберите консультацию:", &keyboard)
}

func (b *Bot) bookConsultation(ctx context.Context, chatID, userID int64, conv *conversation, message string) {
	b.states.finish(chatID)

	consultationID, err := strconv.ParseInt(conv.Data["consultation_id"], 10, 64)
	if err != nil {
		b.send(ctx, chatID, "Запись не удалась, выберите консультацию заново.", nil)
		return
	}

	if err := b.svc.BookConsultation(ctx, userID, consultationID, message); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	b.send(ctx, chatID, "✅ Вы записаны на консультацию.", nil)
}

// --- учётные данные деканата ---

func (b *Bot) addCredentials(ctx context.Context, chatID, userID int64, conv *conversation, password string) {
	b.states.finish(chatID)

	email := conv.Data["email"]
	if err := b.svc.AddCredentials(ctx, userID, email, password); err != nil {
		b.send(ctx, chatID, errorText(err), nil)
		return
	}

	logctx.From(ctx).Info("credentials_added", slog.String("email", redact.Email(email)))
	b.send(ctx, chatID, "✅ Доступ к веб-версии настроен.", nil)
}

// continueConversation продолжает активный многошаговый диалог.
// conv — копия состояния; записи, которые должны пережить текущий
// апдейт, идут через states.set.
func (b *Bot) continueConversation(ctx context.Context, msg *tgbotapi.Message, conv *conversation) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	switch conv.Step {
	case stepRegisterContact:
		b.processContact(ctx, msg)
	case stepRegisterRole:
		b.send(ctx, chatID, "Выберите роль кнопкой выше.", nil)
	case stepTaskTitle:
		if text == "" {
			b.send(ctx, chatID, "Название не может быть пустым.", nil)
			return
		}
		b.states.set(chatID, "title", text)
		b.states.advance(chatID, stepTaskDescription)
		b.send(ctx, chatID, "Описание задачи (или «-», чтобы пропустить):", nil)
	case stepTaskDescription:
		if text != "-" {
			conv.Data["description"] = text
		}
		b.createTask(ctx, chatID, userID, conv)
	case stepBookingMessage:
		if text == "" {
			b.send(ctx, chatID, "Напишите, с чем нужна помощь.", nil)
			return
		}
		b.bookConsultation(ctx, chatID, userID, conv, text)
	case stepCredentialsEmail:
		if text == "" {
			b.send(ctx, chatID, "Введите email.", nil)
			return
		}
		b.states.set(chatID, "email", text)
		b.states.advance(chatID, stepCredentialsPassword)
		b.send(ctx, chatID, "Теперь пароль:", nil)
	case stepCredentialsPassword:
		if text == "" {
			b.send(ctx, chatID, "Введите пароль.", nil)
			return
		}
		b.addCredentials(ctx, chatID, userID, conv, text)
	case stepNameFirst:
		if text == "" {
			b.send(ctx, chatID, "Введите имя.", nil)
			return
		}
		b.states.set(chatID, "first_name", text)
		b.states.advance(chatID, stepNameLast)
		b.send(ctx, chatID, "Теперь фамилию:", nil)
	case stepNameLast:
		if text == "" {
			b.send(ctx, chatID, "Введите фамилию.", nil)
			return
		}
		b.updateName(ctx, chatID, userID, conv.Data["first_name"], text)
	case stepEmailNew:
		if text == "" {
			b.send(ctx, chatID, "Введите email.", nil)
			return
		}
		b.changeEmail(ctx, chatID, userID, text)
	case stepPasswordCurrent:
		if text == "" {
			b.send(ctx, chatID, "Введите текущий пароль.", nil)
			return
		}
		b.states.set(chatID, "current_password", text)
		b.states.advance(chatID, stepPasswordNew)
		b.send(ctx, chatID, "Теперь новый пароль:", nil)
	case stepPasswordNew:
		if text == "" {
			b.send(ctx, chatID, "Введите новый пароль.", nil)
			return
		}
		b.changePassword(ctx, chatID, userID, conv.Data["current_password"], text)
	default:
		b.states.finish(chatID)
		b.send(ctx, chatID, "Наберите /start, чтобы открыть меню.", nil)
	}
}
