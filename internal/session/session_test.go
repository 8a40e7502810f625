package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consultbot/internal/cache"
	"consultbot/internal/config"
	"consultbot/internal/models"
)

// Тесты протокола Manager против скриптованного httptest-сервера платформы
// и in-memory кэша. Покрывают, в частности:
//  - идемпотентность refresh (два подряд — оба успешны);
//  - ровно один refresh и один повтор на 401, второй 401 без ретраев;
//  - фолбэк на полный логин при отклонённом refresh;
//  - жёсткий отказ (404) вычищает хранилище;
//  - деградацию при недоступном кэше (логин вместо падения);
//  - локальный logout при недоступной платформе.

// memCache — потокобезопасный in-memory кэш для тестов.
// failReads/failWrites имитируют недоступность Redis.
type memCache struct {
	mu         sync.Mutex
	data       map[string]string
	failReads  bool
	failWrites bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string)}
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("cache write refused")
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return "", errors.New("cache read refused")
	}
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrKeyNotFound
	}
	return v, nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("cache write refused")
	}
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) Close() error { return nil }

func (c *memCache) get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func newManager(t *testing.T, baseURL string, cch cache.Cache) *Manager {
	t.Helper()
	store := NewTokenStore(cch, 300*time.Second, 24*time.Hour)
	return NewManager(config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second}, store)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Токенов нет: логин выдаёт пару, хранилище наполняется.
func TestDo_NoTokens_LoginFillsStore(t *testing.T) {
	t.Parallel()

	var loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "a1", "refresh": "r1"})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"role": "student"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.NoError(t, err)
	require.True(t, resp.OK())

	require.EqualValues(t, 1, atomic.LoadInt32(&loginCalls))
	require.Equal(t, "a1", cch.get("access-token:42"))
	require.Equal(t, "r1", cch.get("refresh-token:42"))
	require.Equal(t, "1", cch.get("login-flag:42"))
}

// В кэше только refresh: Do обновляет access и проходит с ним.
func TestDo_RefreshOnly_RefreshesBeforeCall(t *testing.T) {
	t.Parallel()

	var refreshCalls, loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "r1", req["refresh"])
		writeJSON(w, http.StatusOK, map[string]string{"access": "a2"})
	})
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/todo/all/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer a2", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/todo/all/"})
	require.NoError(t, err)
	require.True(t, resp.OK())

	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
	require.EqualValues(t, 0, atomic.LoadInt32(&loginCalls))
	require.Equal(t, "a2", cch.get("access-token:42"))
	// Refresh без ротации не трогает refresh-токен.
	require.Equal(t, "r1", cch.get("refresh-token:42"))
}

// Логин 404: пользователь не зарегистрирован, ключей нет.
func TestLogin_NotFound_PurgesAndReturnsNotRegistered(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:99"] = "stale"
	cch.data["refresh-token:99"] = "stale"
	cch.data["login-flag:99"] = "1"
	m := newManager(t, srv.URL, cch)

	_, err := m.Login(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotRegistered)

	require.False(t, cch.has("access-token:99"))
	require.False(t, cch.has("refresh-token:99"))
	require.False(t, cch.has("login-flag:99"))
}

// Единичный 401: ровно один refresh и успешный повтор.
func TestDo_401Once_SingleRefreshAndRetry(t *testing.T) {
	t.Parallel()

	var refreshCalls, profileCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "a2"})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&profileCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer a2", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"role": "student"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.NoError(t, err)
	require.True(t, resp.OK())

	var profile models.Profile
	require.NoError(t, resp.Decode(&profile))
	require.Equal(t, "student", profile.Role)

	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
	require.EqualValues(t, 2, atomic.LoadInt32(&profileCalls))
}

// Два 401 подряд: один refresh, статус отдан наверх, без циклов.
func TestDo_401Twice_NoSecondRefresh(t *testing.T) {
	t.Parallel()

	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "a2"})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.False(t, resp.OK())

	require.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls))
}

// Два refresh подряд с одним refresh-токеном: оба успешны,
// в хранилище остаётся валидный access (любой из двух).
func TestRefresh_Idempotent(t *testing.T) {
	t.Parallel()

	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		access := "a1"
		if atomic.AddInt32(&refreshCalls, 1) > 1 {
			access = "a2"
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": access})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	ctx := context.Background()

	p1, err := m.Refresh(ctx, 42, "r1")
	require.NoError(t, err)
	p2, err := m.Refresh(ctx, 42, "r1")
	require.NoError(t, err)

	require.Equal(t, "a1", p1.Access)
	require.Equal(t, "a2", p2.Access)

	got := cch.get("access-token:42")
	require.Contains(t, []string{"a1", "a2"}, got, "последняя запись побеждает, обе валидны")
}

// Refresh отклонён (400): ровно одна попытка логина, новая пара в ходу.
func TestRefresh_Rejected_FallsBackToLogin(t *testing.T) {
	t.Parallel()

	var loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "fresh-a", "refresh": "fresh-r"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	m := newManager(t, srv.URL, cch)

	pair, err := m.Refresh(context.Background(), 42, "expired-r")
	require.NoError(t, err)
	require.Equal(t, "fresh-a", pair.Access)
	require.Equal(t, "fresh-r", pair.Refresh)

	require.EqualValues(t, 1, atomic.LoadInt32(&loginCalls))
	require.Equal(t, "fresh-a", cch.get("access-token:42"))
	require.Equal(t, "fresh-r", cch.get("refresh-token:42"))
}

// Refresh 404 и логин 404: жёсткий отказ, хранилище вычищено.
func TestRefresh_UserGone_PurgesStorage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "stale-a"
	cch.data["refresh-token:42"] = "stale-r"
	cch.data["login-flag:42"] = "1"
	m := newManager(t, srv.URL, cch)

	_, err := m.Refresh(context.Background(), 42, "stale-r")
	require.ErrorIs(t, err, ErrNotRegistered)

	require.False(t, cch.has("access-token:42"))
	require.False(t, cch.has("refresh-token:42"))
	require.False(t, cch.has("login-flag:42"))
}

// Refresh с неожиданным статусом — ErrAuthExpired без дальнейших попыток.
func TestRefresh_UnexpectedStatus_AuthExpired(t *testing.T) {
	t.Parallel()

	var loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newManager(t, srv.URL, newMemCache())

	_, err := m.Refresh(context.Background(), 42, "r1")
	require.ErrorIs(t, err, ErrAuthExpired)
	require.EqualValues(t, 0, atomic.LoadInt32(&loginCalls))
}

// Кэш падает на каждом чтении: Do не падает, а идёт в логин.
func TestDo_StorageOutage_DegradesToLogin(t *testing.T) {
	t.Parallel()

	var loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "a1", "refresh": "r1"})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"role": "student"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.failReads = true
	cch.failWrites = true
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.EqualValues(t, 1, atomic.LoadInt32(&loginCalls))
}

// Платформа недоступна: logout всё равно чистит локальные токены.
func TestLogout_RemoteUnreachable_StillDeletesLocally(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // адрес валиден, но соединение будет отклонено

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	cch.data["login-flag:42"] = "1"
	m := newManager(t, srv.URL, cch)

	m.Logout(context.Background(), 42)

	require.False(t, cch.has("access-token:42"))
	require.False(t, cch.has("refresh-token:42"))
	require.False(t, cch.has("login-flag:42"))
}

func TestLogout_NotifiesRemoteWithRefreshToken(t *testing.T) {
	t.Parallel()

	var logoutCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logoutCalls, 1)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "r1", req["refresh"])
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	m.Logout(context.Background(), 42)

	require.EqualValues(t, 1, atomic.LoadInt32(&logoutCalls))
	require.False(t, cch.has("refresh-token:42"))
}

func TestDo_NetworkError_TypedConnectionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	_, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.ErrorIs(t, err, ErrConnection)
}

func TestDo_MalformedJSON_TypedError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	_, err := m.Do(context.Background(), 42, Request{Method: http.MethodGet, Path: "/profile/"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

// Не-2xx бизнес-статусы отдаются вызывающему без интерпретации.
func TestDo_BusinessError_PassedThrough(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/todo/7/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "already done"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	cch.data["access-token:42"] = "a1"
	cch.data["refresh-token:42"] = "r1"
	m := newManager(t, srv.URL, cch)

	resp, err := m.Do(context.Background(), 42, Request{Method: http.MethodPatch, Path: "/todo/7/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Contains(t, string(resp.Body), "already done")
}

func TestRegister_Success_SavesTokens(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register/", func(w http.ResponseWriter, r *http.Request) {
		var form models.RegisterForm
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		require.EqualValues(t, 42, form.TelegramID)
		require.Equal(t, "ivan", form.Username)
		require.Equal(t, models.RoleStudent, form.Role)
		writeJSON(w, http.StatusCreated, map[string]string{"access": "a1", "refresh": "r1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cch := newMemCache()
	m := newManager(t, srv.URL, cch)

	pair, err := m.Register(context.Background(), 42, models.RegisterForm{Username: "ivan"})
	require.NoError(t, err)
	require.Equal(t, "a1", pair.Access)
	require.Equal(t, "r1", pair.Refresh)
	require.Equal(t, "1", cch.get("login-flag:42"))
}

func TestRegister_ValidationError_TypedRejection(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"phone_number": []string{"invalid phone number"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newManager(t, srv.URL, newMemCache())

	_, err := m.Register(context.Background(), 42, models.RegisterForm{Username: "ivan"})
	require.ErrorIs(t, err, ErrRegistrationRejected)

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, "invalid phone number", rej.Reason)
}
