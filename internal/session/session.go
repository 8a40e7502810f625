// session реализует сессионный слой бота: жизненный цикл пары токенов
// пользователя и примитив авторизованного запроса к REST API платформы.
//
// Протокол (на пользователя, состояние определяется наличием токенов
// и кодами ответов платформы):
//   - нет токенов -> логин по telegram_id;
//   - есть только refresh -> обновление access по требованию;
//   - 401 на авторизованном запросе -> ровно один refresh и один повтор;
//   - refresh отклонён (400/403/404) -> ровно одна попытка повторного логина;
//   - логин/refresh вернул 404 -> аккаунта нет: локальные токены вычищаются,
//     наверх уходит ErrNotRegistered.
//
// Личность пользователя (telegram_id) — явный параметр каждого метода,
// а не поле менеджера: один Manager безопасно обслуживает все чаты сразу.
// Разделяемое состояние — только HTTP-клиент и хранилище токенов.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"consultbot/internal/config"
	"consultbot/internal/models"
	logctx "consultbot/internal/pkg/log"
)

// Manager владеет протоколом логина/обновления/повтора.
// Экземпляр безопасен для конкурентного использования.
type Manager struct {
	store   *TokenStore
	client  *http.Client
	baseURL string
}

// NewManager создаёт менеджер сессий поверх хранилища токенов.
// Таймаут клиента ограничивает каждый HTTP-вызов, чтобы зависший
// сервер платформы не подвешивал обработку апдейтов.
func NewManager(cfg config.APIConfig, store *TokenStore) *Manager {
	return &Manager{
		store:   store,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Request — описание одного вызова API платформы.
type Request struct {
	Method string
	// Path — путь эндпойнта, например "/profile/".
	Path string
	// Body сериализуется в JSON, если не nil.
	Body any
	// Query — необязательные параметры строки запроса.
	Query url.Values
}

// Response — результат авторизованного вызова.
// Manager не интерпретирует бизнес-коды (404/409 и т.п.) —
// это зона ответственности вызывающей фичи.
type Response struct {
	Status int
	Body   json.RawMessage
}

// OK — ответ из диапазона 2xx.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Decode разбирает тело ответа в v. Пустое тело (204) — no-op.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("session.Response.Decode: %w: %v", ErrMalformedResponse, err)
	}

	return nil
}

// Login выполняет вход по telegram_id и сохраняет полученную пару токенов.
// 404 означает, что аккаунта нет: локальное состояние вычищается и
// возвращается ErrNotRegistered — это сигнал к регистрации, а не сбой.
func (m *Manager) Login(ctx context.Context, id int64) (models.TokenPair, error) {
	const op = "session.Manager.Login"

	status, body, err := m.post(ctx, "/auth/login/", map[string]any{"telegram_id": id}, "")
	if err != nil {
		logins.WithLabelValues("failed").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case status == http.StatusNotFound:
		logctx.From(ctx).Warn("login_user_not_found", slog.Int64("telegram_id", id))
		m.store.Delete(ctx, id)
		logins.WithLabelValues("not_registered").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrNotRegistered)
	case status != http.StatusOK:
		logins.WithLabelValues("failed").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	pair, err := decodePair(body)
	if err != nil {
		logins.WithLabelValues("failed").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	m.store.Save(ctx, id, pair.Access, pair.Refresh)
	logins.WithLabelValues("ok").Inc()

	return pair, nil
}

// Register создаёт аккаунт на платформе и ведёт себя как Login при успехе.
// Ошибка валидации (400) оборачивается в RejectionError с сообщением сервера.
func (m *Manager) Register(ctx context.Context, id int64, form models.RegisterForm) (models.TokenPair, error) {
	const op = "session.Manager.Register"

	form.TelegramID = id
	if form.Role == "" {
		form.Role = models.RoleStudent
	}

	status, body, err := m.post(ctx, "/auth/register/", form, "")
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		// ниже
	case status == http.StatusBadRequest:
		reason := ErrorMessage(body)
		logctx.From(ctx).Warn("register_rejected",
			slog.Int64("telegram_id", id),
			slog.String("reason", reason),
		)
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, &RejectionError{Reason: reason})
	default:
		return models.TokenPair{}, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	pair, err := decodePair(body)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	m.store.Save(ctx, id, pair.Access, pair.Refresh)

	return pair, nil
}

// Refresh обменивает refresh-токен на новый access.
//
// 200 — сохраняется новый access (и refresh, если платформа его ротировала).
// 400/403/404 — refresh недействителен: ровно одна попытка полного логина;
// если и логин отвечает «нет аккаунта», наверх уходит ErrNotRegistered,
// иначе — ErrAuthExpired. Другие статусы — ErrAuthExpired без повторов.
func (m *Manager) Refresh(ctx context.Context, id int64, refresh string) (models.TokenPair, error) {
	const op = "session.Manager.Refresh"

	if refresh == "" {
		return m.Login(ctx, id)
	}

	status, body, err := m.post(ctx, "/auth/refresh/", map[string]any{"refresh": refresh}, "")
	if err != nil {
		tokenRefreshes.WithLabelValues("failed").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	switch status {
	case http.StatusOK:
		var data models.TokenPair
		if jsonErr := json.Unmarshal(body, &data); jsonErr != nil || data.Access == "" {
			tokenRefreshes.WithLabelValues("failed").Inc()
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrMalformedResponse)
		}

		pair := models.TokenPair{Access: data.Access, Refresh: refresh}
		if data.Refresh != "" {
			// Платформа ротировала и refresh — сохраняем оба.
			pair.Refresh = data.Refresh
			m.store.Save(ctx, id, pair.Access, pair.Refresh)
		} else {
			m.store.SaveAccess(ctx, id, pair.Access)
		}

		tokenRefreshes.WithLabelValues("ok").Inc()
		return pair, nil

	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		logctx.From(ctx).Warn("refresh_rejected_relogin",
			slog.Int64("telegram_id", id),
			slog.Int("status", status),
		)
		tokenRefreshes.WithLabelValues("relogin").Inc()

		pair, loginErr := m.Login(ctx, id)
		if loginErr != nil {
			if errors.Is(loginErr, ErrNotRegistered) {
				return models.TokenPair{}, loginErr
			}

			return models.TokenPair{}, fmt.Errorf("%s: %w: %v", op, ErrAuthExpired, loginErr)
		}

		return pair, nil

	default:
		tokenRefreshes.WithLabelValues("failed").Inc()
		return models.TokenPair{}, fmt.Errorf("%s: %w: unexpected status %d", op, ErrAuthExpired, status)
	}
}

// Do выполняет авторизованный запрос к платформе.
//
// Гарантии:
//   - валидный access-токен подставляется автоматически (загрузка из
//     хранилища, refresh или логин — по необходимости);
//   - на 401 выполняется ровно один refresh и один повтор; второй 401
//     отдаётся вызывающему как есть, без дальнейших попыток;
//   - прочие не-2xx статусы возвращаются без интерпретации.
func (m *Manager) Do(ctx context.Context, id int64, req Request) (*Response, error) {
	const op = "session.Manager.Do"

	pair, err := m.ensureTokens(ctx, id)
	if err != nil {
		apiRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status, body, err := m.call(ctx, req, pair.Access)
	if err != nil {
		apiRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outcome := "ok"

	if status == http.StatusUnauthorized && pair.HasRefresh() {
		logctx.From(ctx).Info("access_token_rejected_refreshing", slog.Int64("telegram_id", id))

		fresh, refreshErr := m.Refresh(ctx, id, pair.Refresh)
		if refreshErr != nil {
			apiRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%s: %w", op, refreshErr)
		}

		status, body, err = m.call(ctx, req, fresh.Access)
		if err != nil {
			apiRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		outcome = "retried"
		if status == http.StatusUnauthorized {
			// Второй 401 подряд — не зацикливаемся, отдаём как есть.
			outcome = "unauthorized"
		}
	}

	if status >= 200 && status < 300 {
		if len(body) > 0 && !json.Valid(body) {
			apiRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrMalformedResponse)
		}

		apiRequests.WithLabelValues(outcome).Inc()
		return &Response{Status: status, Body: body}, nil
	}

	apiRequests.WithLabelValues(outcome).Inc()

	return &Response{Status: status, Body: body}, nil
}

// Logout уведомляет платформу (best-effort) и безусловно удаляет
// локальные токены: сетевой сбой не должен мешать локальному выходу.
func (m *Manager) Logout(ctx context.Context, id int64) {
	pair, _ := m.store.Load(ctx, id)

	if pair.HasRefresh() {
		status, _, err := m.post(ctx, "/auth/logout/", map[string]any{"refresh": pair.Refresh}, "")
		if err != nil {
			logctx.From(ctx).Warn("logout_notify_failed",
				slog.Int64("telegram_id", id),
				slog.String("err", err.Error()),
			)
		} else if status != http.StatusOK {
			logctx.From(ctx).Warn("logout_notify_unexpected_status",
				slog.Int64("telegram_id", id),
				slog.Int("status", status),
			)
		}
	}

	m.store.Delete(ctx, id)
}

// LoggedIn — дешёвая проверка «входил ли пользователь», по кэшированному флагу.
func (m *Manager) LoggedIn(ctx context.Context, id int64) bool {
	return m.store.LoggedIn(ctx, id)
}

// ensureTokens добывает рабочую пару токенов:
// хранилище -> refresh по требованию -> полный логин.
func (m *Manager) ensureTokens(ctx context.Context, id int64) (models.TokenPair, error) {
	pair, ok := m.store.Load(ctx, id)
	if ok {
		return pair, nil
	}

	if pair.HasRefresh() {
		return m.Refresh(ctx, id, pair.Refresh)
	}

	return m.Login(ctx, id)
}

// call выполняет один авторизованный HTTP-вызов без ретраев.
func (m *Manager) call(ctx context.Context, req Request, access string) (int, []byte, error) {
	var payload io.Reader

	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	endpoint := m.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return resp.StatusCode, body, nil
}

// post — POST на служебные auth-эндпойнты.
func (m *Manager) post(ctx context.Context, path string, body any, access string) (int, []byte, error) {
	return m.call(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, access)
}

// decodePair разбирает тело ответа с парой токенов.
func decodePair(body []byte) (models.TokenPair, error) {
	var pair models.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return models.TokenPair{}, ErrMalformedResponse
	}

	if !pair.HasAccess() || !pair.HasRefresh() {
		return models.TokenPair{}, ErrMalformedResponse
	}

	return pair, nil
}

// ErrorMessage собирает человекочитаемую причину из тела ошибки
// валидации. Платформа отдаёт словарь поле -> список сообщений; берём
// первые элементы списков, прочие значения приводим к строке.
func ErrorMessage(body []byte) string {
	var asMap map[string]any
	if err := json.Unmarshal(body, &asMap); err == nil {
		var parts []string
		for _, v := range asMap {
			switch val := v.(type) {
			case []any:
				if len(val) > 0 {
					parts = append(parts, fmt.Sprint(val[0]))
				}
			default:
				parts = append(parts, fmt.Sprint(val))
			}
		}
		return strings.Join(parts, " ")
	}

	var asList []any
	if err := json.Unmarshal(body, &asList); err == nil {
		var parts []string
		for _, v := range asList {
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, " ")
	}

	return strings.TrimSpace(string(body))
}
