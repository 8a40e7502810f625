package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consultbot/internal/bot"
	"consultbot/internal/cache"
	"consultbot/internal/config"
	"consultbot/internal/help"
	"consultbot/internal/service"
	"consultbot/internal/session"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключение к Redis с таймаутом.
	cacheCtx, cacheCancel := context.WithTimeout(rootCtx, 10*time.Second)
	cch, err := cache.New(cacheCtx, cfg.Redis)
	cacheCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer cch.Close()
	log.Info("redis_connected")

	store := session.NewTokenStore(cch, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	sessions := session.NewManager(cfg.API, store)
	svc := service.New(sessions)
	helpContent := help.New(cfg.Help.Path, cfg.Help.CacheTTL)

	tgBot, err := bot.New(cfg.Telegram, svc, helpContent)
	if err != nil {
		log.Error("telegram_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("telegram_connected", slog.String("username", tgBot.Username()))

	// Служебный HTTP: livez/healthz/metrics.
	var ready int32 // 0 — not ready; 1 — ready
	httpAddr := cfg.Health.Addr()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	router.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Цикл обновлений бота.
	atomic.StoreInt32(&ready, 1)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := tgBot.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	// Ожидание сигнала завершения или фатальной ошибки цикла.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("bot_run_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Дожидаемся обработчиков, но не дольше таймаута.
	done := make(chan struct{})
	go func() {
		<-serveErrCh
		close(done)
	}()

	select {
	case <-done:
		log.Info("bot_stopped")
	case <-time.After(10 * time.Second):
		log.Warn("bot_force_stop")
	}

	// Грейсфул остановка HTTP.
	_ = httpSrv.Shutdown(context.Background())

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
