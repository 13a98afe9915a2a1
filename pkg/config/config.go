package config

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port        string
	AppEnv      string
	DatabaseURL string

	// LegalAidIncomeThreshold is nil when the value is missing or unparsable.
	// Callers treat nil as "fast-path approval disabled".
	LegalAidIncomeThreshold *float64
	// ThresholdWarning explains why the threshold is unavailable, if it is.
	ThresholdWarning string

	JWTSecret string
	TokenTTL  time.Duration

	PaymentProvider  string
	DevPaymentSecret string

	SMTP  SMTPConfig
	MinIO MinIOConfig

	LogLevel string
	LogDev   bool
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Enabled reports whether outbound email is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.FromEmail != "" }

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether document storage is configured.
func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" && c.Bucket != "" }

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:             getEnv("PORT", "3000"),
		AppEnv:           getEnv("APP_ENV", "production"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TokenTTL:         time.Duration(getEnvInt("TOKEN_TTL_HOURS", 7*24)) * time.Hour,
		PaymentProvider:  getEnv("PAYMENT_PROVIDER", "mock"),
		DevPaymentSecret: os.Getenv("DEV_PAYMENT_SECRET"),
		SMTP: SMTPConfig{
			Host:      os.Getenv("SMTP_HOST"),
			Port:      getEnvInt("SMTP_PORT", 587),
			Username:  os.Getenv("SMTP_USERNAME"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: os.Getenv("SMTP_FROM_EMAIL"),
			FromName:  getEnv("SMTP_FROM_NAME", "Legal Aid"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "service-documents"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogDev:   os.Getenv("LOG_DEV") == "1",
	}

	cfg.LegalAidIncomeThreshold, cfg.ThresholdWarning = ParseIncomeThreshold(os.Getenv("LEGAL_AID_INCOME_THRESHOLD"))

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return cfg, errors.New("JWT_SECRET is required outside dev")
		}
		cfg.JWTSecret = "dev-only-secret"
	}
	return cfg, nil
}

// IsDev reports whether dev-only routes (mock payments) may be mounted.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

// ParseIncomeThreshold parses the legal-aid income threshold. It fails closed:
// an empty, non-numeric or negative value yields nil plus a reason.
func ParseIncomeThreshold(raw string) (*float64, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "LEGAL_AID_INCOME_THRESHOLD is not set"
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, "LEGAL_AID_INCOME_THRESHOLD is not a number"
	}
	if v < 0 {
		return nil, "LEGAL_AID_INCOME_THRESHOLD must not be negative"
	}
	return &v, ""
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
