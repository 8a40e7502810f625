package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consultbot/internal/cache"
	"consultbot/internal/config"
	"consultbot/internal/models"
	"consultbot/internal/session"
)

// Тесты фичевых обёрток против скриптованного httptest-сервера платформы.
// Сессионная механика здесь не проверяется (это забота пакета session):
// кэш заранее наполняется валидной парой токенов, чтобы Do шёл сразу
// на целевой эндпойнт.

type stubCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string]string)}
}

func (c *stubCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *stubCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrKeyNotFound
	}
	return v, nil
}

func (c *stubCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *stubCache) Close() error { return nil }

const testUserID int64 = 42

// newService поднимает сервис поверх сервера платформы с уже
// залогиненным пользователем testUserID.
func newService(t *testing.T, handler http.Handler) *Service {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cch := newStubCache()
	cch.data[fmt.Sprintf("access-token:%d", testUserID)] = "a1"
	cch.data[fmt.Sprintf("refresh-token:%d", testUserID)] = "r1"

	store := session.NewTokenStore(cch, 300*time.Second, 24*time.Hour)
	return New(session.NewManager(config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, store))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProfile_DecodesResponse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{
			"first_name": "Анна",
			"last_name":  "Петрова",
			"role":       "teacher",
			"status":     "active",
		})
	})

	svc := newService(t, mux)

	profile, err := svc.Profile(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, "Анна", profile.FirstName)
	require.True(t, profile.IsTeacher())
	require.Equal(t, models.TeacherStatusActive, profile.Status)
}

func TestRole_UnknownValueIsEmpty(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"role": "janitor"})
	})

	svc := newService(t, mux)

	role, err := svc.Role(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, role)
}

func TestTask_NotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/todo/7/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	})

	svc := newService(t, mux)

	_, err := svc.Task(context.Background(), testUserID, 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTasks_PassesFilterQuery(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/todo/all/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "5", q.Get("page_size"))
		require.Equal(t, "open", q.Get("status"))
		writeJSON(w, http.StatusOK, models.TaskPage{
			Results:     []models.Task{{ID: 1, Title: "сдать отчёт"}},
			CurrentPage: 2,
			TotalPages:  3,
		})
	})

	svc := newService(t, mux)

	page, err := svc.Tasks(context.Background(), testUserID, 2, 5, "open")
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, 3, page.TotalPages)
}

func TestCreateTask_OmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/todo/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "купить билеты", payload["title"])
		require.NotContains(t, payload, "deadline")
		require.NotContains(t, payload, "assignee_id")
		writeJSON(w, http.StatusCreated, models.Task{ID: 11, Title: "купить билеты"})
	})

	svc := newService(t, mux)

	created, err := svc.CreateTask(context.Background(), testUserID, models.Task{Title: "купить билеты"})
	require.NoError(t, err)
	require.EqualValues(t, 11, created.ID)
}

func TestUpdateTask_PatchSendsOnlySetFields(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/todo/11/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, map[string]any{"status": "done"}, payload)
		writeJSON(w, http.StatusOK, models.Task{ID: 11, Status: "done"})
	})

	svc := newService(t, mux)

	status := "done"
	task, err := svc.UpdateTask(context.Background(), testUserID, 11, models.TaskPatch{Status: &status})
	require.NoError(t, err)
	require.Equal(t, "done", task.Status)
}

func TestBookConsultation_NotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/consultations/5/book/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	})

	svc := newService(t, mux)

	err := svc.BookConsultation(context.Background(), testUserID, 5, "нужна помощь с курсовой")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTeachers_ConvertsPageNumbering(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/teachers/", func(w http.ResponseWriter, r *http.Request) {
		// Нулевая страница бота — первая страница платформы.
		require.Equal(t, "1", r.URL.Query().Get("page"))
		writeJSON(w, http.StatusOK, models.TeacherPage{
			Results:     []models.Teacher{{ID: 1, FirstName: "Иван", LastName: "Сидоров"}},
			CurrentPage: 1,
			TotalPages:  2,
		})
	})

	svc := newService(t, mux)

	page, err := svc.Teachers(context.Background(), testUserID, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 0, page.CurrentPage)
	require.Equal(t, 2, page.TotalPages)
}

func TestAddCredentials_RejectedWithReason(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/credentials/add/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"email": {"invalid email"},
		})
	})

	svc := newService(t, mux)

	err := svc.AddCredentials(context.Background(), testUserID, "bad", "secret")
	require.ErrorIs(t, err, ErrCredentialsRejected)
	require.Contains(t, err.Error(), "invalid email")
}

func TestChangeEmail_NoCredentials(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/change/email/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "no credentials"})
	})

	svc := newService(t, mux)

	err := svc.ChangeEmail(context.Background(), testUserID, "new@example.com")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestChangePassword_OK(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/change/password/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "old-secret", payload["current_password"])
		require.Equal(t, "new-secret", payload["new_password"])
		writeJSON(w, http.StatusOK, map[string]string{"detail": "ok"})
	})

	svc := newService(t, mux)

	require.NoError(t, svc.ChangePassword(context.Background(), testUserID, "old-secret", "new-secret"))
}

func TestHasDeanCredentials(t *testing.T) {
	t.Parallel()

	email := "42@telegram.local"
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "role": "student"})
	})

	svc := newService(t, mux)

	require.False(t, svc.HasDeanCredentials(context.Background(), testUserID))

	mu.Lock()
	email = "real@university.edu"
	mu.Unlock()
	require.True(t, svc.HasDeanCredentials(context.Background(), testUserID))
}

func TestSessionErrorsPassThrough(t *testing.T) {
	t.Parallel()

	// Логин отвечает 404: пользователь не зарегистрирован.
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown user"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := session.NewTokenStore(newStubCache(), 300*time.Second, 24*time.Hour)
	svc := New(session.NewManager(config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, store))

	_, err := svc.Profile(context.Background(), testUserID)
	require.True(t, errors.Is(err, session.ErrNotRegistered))
}
