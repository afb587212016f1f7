package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
}

type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	MailFrom      string
	PostmarkToken string
	SMTP          SMTP

	RedisAddr string

	BcryptCost int
	SessionTTL time.Duration
}

// Load reads QUIZ_* variables through getenv, usually os.Getenv. Unset
// variables take their defaults; malformed ones are an error.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:          envOr(getenv, "QUIZ_PORT", "8080"),
		DBPath:        envOr(getenv, "QUIZ_DB_PATH", "quizapp.db"),
		BaseURL:       strings.TrimSpace(getenv("QUIZ_BASE_URL")),
		LogLevel:      getenv("QUIZ_LOG_LEVEL"),
		LogFormat:     envOr(getenv, "QUIZ_LOG_FORMAT", "text"),
		MailFrom:      envOr(getenv, "QUIZ_MAIL_FROM", "Quiz <noreply@localhost>"),
		PostmarkToken: getenv("QUIZ_POSTMARK_TOKEN"),
		SMTP: SMTP{
			Host:     getenv("QUIZ_SMTP_HOST"),
			User:     getenv("QUIZ_SMTP_USER"),
			Password: getenv("QUIZ_SMTP_PASS"),
		},
		RedisAddr: getenv("QUIZ_REDIS_ADDR"),
	}

	var err error
	if cfg.SMTP.Port, err = intOr(getenv, "QUIZ_SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intOr(getenv, "QUIZ_BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("QUIZ_BCRYPT_COST: %d outside [%d, %d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	cfg.SessionTTL = 30 * 24 * time.Hour
	if v := getenv("QUIZ_SESSION_TTL"); v != "" {
		if cfg.SessionTTL, err = time.ParseDuration(v); err != nil {
			return Config{}, fmt.Errorf("QUIZ_SESSION_TTL: %w", err)
		}
		if cfg.SessionTTL <= 0 {
			return Config{}, fmt.Errorf("QUIZ_SESSION_TTL: must be positive, got %s", v)
		}
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return Config{}, fmt.Errorf("QUIZ_BASE_URL: %q is not an absolute url", cfg.BaseURL)
		}
	}

	return cfg, nil
}

// MailTransport names the transport the configuration selects: "postmark",
// "smtp" or "log".
func (c Config) MailTransport() string {
	switch {
	case c.PostmarkToken != "":
		return "postmark"
	case c.SMTP.Host != "":
		return "smtp"
	default:
		return "log"
	}
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
