package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}

// WithUpdate навешивает на логгер в контексте атрибуты телеграм-апдейта
// (chat_id и telegram_id) и возвращает обновлённый контекст.
// Используется диспетчером бота, чтобы все вложенные вызовы
// (сессия, кэш, фичи) писали логи с привязкой к пользователю.
func WithUpdate(ctx context.Context, chatID, telegramID int64) context.Context {
	l := From(ctx).With(
		slog.Int64("chat_id", chatID),
		slog.Int64("telegram_id", telegramID),
	)

	return Into(ctx, l)
}
