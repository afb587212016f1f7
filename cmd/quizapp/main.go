package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/quizapp/internal/config"
	"github.com/dukerupert/quizapp/internal/database"
	"github.com/dukerupert/quizapp/internal/email"
	"github.com/dukerupert/quizapp/internal/logging"
	"github.com/dukerupert/quizapp/internal/middleware"
	"github.com/dukerupert/quizapp/internal/server"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limiting will fail open", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		limiter = middleware.NewRedisRateLimiter(rdb, "")
		slog.Info("using redis rate limiter", "addr", cfg.RedisAddr)
	}

	srv := server.New(db, server.Config{
		BaseURL:    cfg.BaseURL,
		MailFrom:   cfg.MailFrom,
		BcryptCost: cfg.BcryptCost,
		SessionTTL: cfg.SessionTTL,
		Transport:  mailTransport(cfg, logger),
		Limiter:    limiter,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(cleanupCtx); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if rl, ok := srv.RateLimiter().(*middleware.RateLimiter); ok {
					rl.Cleanup()
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("quizapp starting", "addr", httpServer.Addr, "mail", cfg.MailTransport())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func mailTransport(cfg config.Config, logger *slog.Logger) email.Transport {
	switch cfg.MailTransport() {
	case "postmark":
		return email.NewPostmarkTransport(cfg.PostmarkToken)
	case "smtp":
		return email.NewSMTPTransport(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
		})
	default:
		return email.NewLogTransport(logger.With("component", "email"))
	}
}
