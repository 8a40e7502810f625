// bot — телеграм-фронтенд платформы: long-polling цикл, меню и
// многошаговые диалоги. Слой тонкий: вся работа с платформой идёт
// через service.Service, вся механика токенов — ниже, в session.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"consultbot/internal/config"
	"consultbot/internal/help"
	logctx "consultbot/internal/pkg/log"
	"consultbot/internal/service"
)

// Bot — телеграм-бот поверх фасада фич.
type Bot struct {
	api       *tgbotapi.BotAPI
	svc       *service.Service
	help      *help.Content
	states    *stateStore
	parseMode string
	pollTO    int
}

// New подключается к Bot API и собирает бота.
func New(cfg config.TelegramConfig, svc *service.Service, helpContent *help.Content) (*Bot, error) {
	const op = "bot.New"

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Bot{
		api:       api,
		svc:       svc,
		help:      helpContent,
		states:    newStateStore(),
		parseMode: cfg.ParseMode,
		pollTO:    cfg.PollTimeout,
	}, nil
}

// Username — имя бота, под которым он авторизовался.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run крутит цикл обновлений до отмены контекста. Каждый апдейт
// обрабатывается в своей горутине; перед выходом Run дожидается
// завершения обработчиков.
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTO

	updates := b.api.GetUpdatesChan(updateCfg)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				b.dispatch(ctx, update)
			}()
		}
	}
}

// dispatch определяет чат и пользователя апдейта, навешивает их на
// логгер в контексте и передаёт апдейт обработчику.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logctx.From(ctx).Error("handler_panic", slog.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		// у callback из inline-режима нет исходного сообщения.
		if cq.Message == nil {
			return
		}
		ctx = logctx.WithUpdate(ctx, cq.Message.Chat.ID, cq.From.ID)
		b.handleCallback(ctx, cq)
	case update.Message != nil:
		msg := update.Message
		ctx = logctx.WithUpdate(ctx, msg.Chat.ID, msg.From.ID)
		b.handleMessage(ctx, msg)
	}
}

// send отправляет текст с клавиатурой; ошибки Bot API только логируются.
func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	if _, err := b.api.Send(msg); err != nil {
		logctx.From(ctx).Error("send_failed", slog.String("error", err.Error()))
	}
}

// edit правит текст и клавиатуру сообщения; если править нечего или
// Telegram отказал (например, сообщение слишком старое), шлёт новое.
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		b.send(ctx, chatID, text, keyboard)
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = b.parseMode
	if keyboard != nil {
		edit.ReplyMarkup = keyboard
	}

	if _, err := b.api.Send(edit); err != nil {
		logctx.From(ctx).Warn("edit_failed", slog.String("error", err.Error()))
		b.send(ctx, chatID, text, keyboard)
	}
}

// answer закрывает callback (убирает «часики» на кнопке).
func (b *Bot) answer(ctx context.Context, callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		logctx.From(ctx).Warn("callback_answer_failed", slog.String("error", err.Error()))
	}
}
