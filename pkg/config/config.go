// Package config loads process configuration from the environment once at
// startup and hands it to components as an explicit object.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Razorpay holds payment gateway credentials and the explicit test-mode flag.
// TestMode must be set deliberately; it is never inferred from the shape of
// the credentials.
type Razorpay struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	TestMode      bool
}

// Configured reports whether real gateway credentials are present. The
// test-mode signature bypass is only reachable when this is false.
func (r Razorpay) Configured() bool {
	return r.KeyID != "" && r.KeySecret != ""
}

// Email selects the delivery backend and its SMTP parameters.
type Email struct {
	Backend     string // "smtp" or "log"
	Host        string
	Port        string
	User        string
	Password    string
	From        string
	AdminEmails []string
}

// Storage selects the blob backend.
type Storage struct {
	Backend     string // "local" or "supabase"
	Dir         string // local backend root
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

// Tasks configures the background task runner.
type Tasks struct {
	Workers     int
	SoftTimeout time.Duration
}

// Config holds application configuration.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	FrontendURL string

	Razorpay Razorpay
	Email    Email
	Storage  Storage
	Tasks    Tasks
}

// Load reads configuration from environment variables, loading .env first if
// present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		Razorpay: Razorpay{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			TestMode:      getBool("PAYMENT_TEST_MODE", false),
		},

		Email: Email{
			Backend:     getEnv("EMAIL_BACKEND", "log"),
			Host:        os.Getenv("SMTP_HOST"),
			Port:        getEnv("SMTP_PORT", "587"),
			User:        os.Getenv("SMTP_USER"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			From:        getEnv("EMAIL_FROM", "noreply@caplatform.local"),
			AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),
		},

		Storage: Storage{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			Dir:         getEnv("STORAGE_DIR", "./media"),
			SupabaseURL: os.Getenv("SUPABASE_URL"),
			SupabaseKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			Bucket:      os.Getenv("SUPABASE_BUCKET"),
		},

		Tasks: Tasks{
			Workers:     getInt("TASK_WORKERS", 4),
			SoftTimeout: getDuration("TASK_SOFT_TIMEOUT", 30*time.Second),
		},
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %v\n", key, v, fallback)
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %d\n", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %s\n", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
