package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Gemini API
	GeminiAPIKey string
	GeminiModel  string

	// Server
	Port           string
	AppEnv         string
	AllowedOrigins []string

	// Rose
	DefaultLocale     string
	GenerationTimeout time.Duration // 0 = 제한 없음
	MaxUploadMemory   int64

	// Session
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
}

// LoadConfig - .env 파일(있으면)과 환경변수에서 설정 로드
func LoadConfig() (*Config, error) {
	// .env 파일이 없어도 환경변수만으로 동작
	envFileLoaded := godotenv.Load() == nil

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if !envFileLoaded && cfg.AppEnv == "development" {
		fmt.Fprintln(os.Stderr, "⚠️  .env file not found, using environment variables")
	}
	return cfg, nil
}

// FromEnv - getenv 함수로부터 설정 구성 (테스트에서 주입 가능)
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, defaultValue string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return defaultValue
	}

	timeout, err := parseDuration(get("GENERATION_TIMEOUT", "0"))
	if err != nil {
		return nil, fmt.Errorf("GENERATION_TIMEOUT: %w", err)
	}
	ttl, err := parseDuration(get("SESSION_TTL", "2h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	sweep, err := parseDuration(get("SESSION_SWEEP_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_SWEEP_INTERVAL: %w", err)
	}

	uploadMB := 32
	if raw := getenv("MAX_UPLOAD_MEMORY_MB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("MAX_UPLOAD_MEMORY_MB: %w", err)
		}
		uploadMB = parsed
	}

	origins := lo.Compact(lo.Map(strings.Split(get("ALLOWED_ORIGINS", "*"), ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))

	cfg := &Config{
		GeminiAPIKey: get("GEMINI_API_KEY", ""),
		GeminiModel:  get("GEMINI_MODEL", "gemini-2.5-flash-image"),

		Port:           get("PORT", "8080"),
		AppEnv:         get("APP_ENV", "production"),
		AllowedOrigins: origins,

		DefaultLocale:     get("DEFAULT_LOCALE", "es"),
		GenerationTimeout: timeout,
		MaxUploadMemory:   int64(uploadMB) << 20,

		SessionTTL:           ttl,
		SessionSweepInterval: sweep,
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.MaxUploadMemory <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MEMORY_MB must be positive")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// Addr - HTTP 리슨 주소
func (c *Config) Addr() string {
	return ":" + c.Port
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
