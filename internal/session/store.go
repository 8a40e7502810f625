package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"consultbot/internal/cache"
	"consultbot/internal/models"
	logctx "consultbot/internal/pkg/log"
)

// Ключи кэша, на пользователя (telegram_id).
const (
	accessKeyFmt  = "access-token:%d"
	refreshKeyFmt = "refresh-token:%d"
	loginFlagFmt  = "login-flag:%d"
)

// TokenStore — хранилище токенов и флага входа поверх cache.Cache.
//
// Граница поглощения ошибок: недоступность кэша не должна ронять
// диалог с пользователем, поэтому каждая операция логирует свою ошибку
// и деградирует до «пользователь не авторизован». Ошибки хранилища
// из методов TokenStore не возвращаются никогда.
type TokenStore struct {
	cache      cache.Cache
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenStore создаёт хранилище с TTL токенов из конфигурации.
func NewTokenStore(c cache.Cache, accessTTL, refreshTTL time.Duration) *TokenStore {
	return &TokenStore{
		cache:      c,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func accessKey(id int64) string    { return fmt.Sprintf(accessKeyFmt, id) }
func refreshKey(id int64) string   { return fmt.Sprintf(refreshKeyFmt, id) }
func loginFlagKey(id int64) string { return fmt.Sprintf(loginFlagFmt, id) }

// Save сохраняет пару токенов с независимыми TTL и взводит флаг входа.
// Access без refresh не пишется: такая пара бесполезна после истечения access.
func (s *TokenStore) Save(ctx context.Context, id int64, access, refresh string) {
	log := logctx.From(ctx)

	if access == "" || refresh == "" {
		log.Warn("token_store_save_skipped", slog.Int64("telegram_id", id))
		return
	}

	if err := s.cache.Set(ctx, accessKey(id), access, s.accessTTL); err != nil {
		log.Error("token_store_save_access_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}

	if err := s.cache.Set(ctx, refreshKey(id), refresh, s.refreshTTL); err != nil {
		log.Error("token_store_save_refresh_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}

	s.SetLoginFlag(ctx, id)
}

// SaveAccess обновляет только access-токен (после refresh без ротации).
func (s *TokenStore) SaveAccess(ctx context.Context, id int64, access string) {
	log := logctx.From(ctx)

	if access == "" {
		return
	}

	if err := s.cache.Set(ctx, accessKey(id), access, s.accessTTL); err != nil {
		log.Error("token_store_save_access_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// Load читает оба токена. ok=true только если присутствуют оба;
// при этом поля пары заполняются тем, что нашлось, — refresh без access
// годится для обновления токена on-demand.
func (s *TokenStore) Load(ctx context.Context, id int64) (models.TokenPair, bool) {
	log := logctx.From(ctx)

	var pair models.TokenPair

	access, err := s.cache.Get(ctx, accessKey(id))
	if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		log.Error("token_store_load_access_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
		return models.TokenPair{}, false
	}

	refresh, err := s.cache.Get(ctx, refreshKey(id))
	if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		log.Error("token_store_load_refresh_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
		return models.TokenPair{}, false
	}

	pair.Access = access
	pair.Refresh = refresh

	ok := pair.HasAccess() && pair.HasRefresh()
	if ok {
		s.SetLoginFlag(ctx, id)
	}

	return pair, ok
}

// Delete удаляет оба токена и флаг входа (logout или жёсткий отказ сервера).
func (s *TokenStore) Delete(ctx context.Context, id int64) {
	log := logctx.From(ctx)

	if err := s.cache.Del(ctx, accessKey(id), refreshKey(id)); err != nil {
		log.Error("token_store_delete_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}

	s.ClearLoginFlag(ctx, id)
}

// SetLoginFlag взводит флаг «пользователь хоть раз входил».
// Флаг живёт дольше access-токена и служит дешёвой проверкой наличия сессии.
func (s *TokenStore) SetLoginFlag(ctx context.Context, id int64) {
	if err := s.cache.Set(ctx, loginFlagKey(id), "1", s.refreshTTL); err != nil {
		logctx.From(ctx).Error("token_store_set_flag_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// ClearLoginFlag снимает флаг входа.
func (s *TokenStore) ClearLoginFlag(ctx context.Context, id int64) {
	if err := s.cache.Del(ctx, loginFlagKey(id)); err != nil {
		logctx.From(ctx).Error("token_store_clear_flag_failed",
			slog.Int64("telegram_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// LoggedIn — быстрый ответ «входил ли пользователь», без чтения токенов.
// При недоступности кэша отвечает false.
func (s *TokenStore) LoggedIn(ctx context.Context, id int64) bool {
	val, err := s.cache.Get(ctx, loginFlagKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			logctx.From(ctx).Error("token_store_flag_read_failed",
				slog.Int64("telegram_id", id),
				slog.String("err", err.Error()),
			)
		}
		return false
	}

	return val == "1"
}
