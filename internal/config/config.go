package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Quiz modes
const (
	ModeNormal = "normal"
	ModeBlitz  = "blitz"
	ModeScore  = "score"
)

// Pool sources and recovery backends
const (
	PoolSourceFile     = "file"
	PoolSourceDatabase = "database"

	RecoveryBackendFile  = "file"
	RecoveryBackendRedis = "redis"
)

type Config struct {
	// Telegram
	BotToken    string
	ChatID      int64
	LeadAdminID int64

	// Quiz
	QuizMode             string
	RoundDurationMinutes float64
	PollInterval         time.Duration
	RandomSelection      bool
	QuizSeed             int64
	HasQuizSeed          bool

	// Recovery
	IgnoreSaveState    bool
	ForceLoadSaveState bool
	RecoveryBackend    string
	DumpDir            string

	// Content
	PoolSource   string
	DataDir      string
	MessagesFile string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Application
	AppEnv    string
	LogLevel  string
	DebugMode bool

	// Rate Limiting
	RateLimitPerUser int
	RateLimitWindow  time.Duration
}

// LoadConfig reads the environment and validates everything the bot needs to run.
func LoadConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads the environment without validation. Maintenance commands use it since they do not
// talk to Telegram.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		BotToken: getEnv("BOT_TOKEN", ""),

		QuizMode:        strings.ToLower(getEnv("QUIZ_MODE", ModeNormal)),
		PollInterval:    env.getEnvDuration("POLL_INTERVAL", 5*time.Second),
		RandomSelection: env.getEnvBool("RANDOM_SELECTION", true),

		IgnoreSaveState:    env.getEnvBool("IGNORE_SAVE_STATE", false),
		ForceLoadSaveState: env.getEnvBool("FORCE_LOAD_SAVE_STATE", false),
		RecoveryBackend:    getEnv("RECOVERY_BACKEND", RecoveryBackendFile),
		DumpDir:            getEnv("DUMP_DIR", "dump"),

		PoolSource:   getEnv("POOL_SOURCE", PoolSourceFile),
		DataDir:      getEnv("DATA_DIR", "data"),
		MessagesFile: getEnv("MESSAGES_FILE", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "quizbot"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "quizbot_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       env.getEnvInt("REDIS_DB", 0),

		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DebugMode: env.getEnvBool("DEBUG_MODE", false),

		RateLimitPerUser: env.getEnvInt("RATE_LIMIT_PER_USER", 20),
		RateLimitWindow:  env.getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	// Every set value must parse; defaults apply only to unset variables
	if err := env.err(); err != nil {
		return nil, err
	}

	var err error
	if cfg.ChatID, err = parseInt64Env("CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.LeadAdminID, err = parseInt64Env("LEAD_ADMIN_ID"); err != nil {
		return nil, err
	}

	duration := getEnv("ROUND_DURATION_MINUTES", "1")
	cfg.RoundDurationMinutes, err = strconv.ParseFloat(duration, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUND_DURATION_MINUTES: %w", err)
	}

	if seed := getEnv("QUIZ_SEED", ""); seed != "" {
		cfg.QuizSeed, err = strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid QUIZ_SEED: %w", err)
		}
		cfg.HasQuizSeed = true
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("CHAT_ID is required")
	}
	if c.LeadAdminID <= 0 {
		return fmt.Errorf("LEAD_ADMIN_ID must be a positive user id")
	}
	switch c.QuizMode {
	case ModeNormal, ModeBlitz, ModeScore:
	default:
		return fmt.Errorf("QUIZ_MODE must be one of normal, blitz, score; got %q", c.QuizMode)
	}
	if c.RoundDurationMinutes <= 0 {
		return fmt.Errorf("ROUND_DURATION_MINUTES must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	switch c.PoolSource {
	case PoolSourceFile:
	case PoolSourceDatabase:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required when POOL_SOURCE=database")
		}
	default:
		return fmt.Errorf("POOL_SOURCE must be file or database; got %q", c.PoolSource)
	}
	switch c.RecoveryBackend {
	case RecoveryBackendFile:
	case RecoveryBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RECOVERY_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RECOVERY_BACKEND must be file or redis; got %q", c.RecoveryBackend)
	}
	if c.RateLimitPerUser <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_USER and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.PoolSource == PoolSourceDatabase && c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.DebugMode {
		return fmt.Errorf("DEBUG_MODE must be off in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) GetRoundDuration() time.Duration {
	return time.Duration(c.RoundDurationMinutes * float64(time.Minute))
}

// Seed returns QUIZ_SEED when set and the wall clock otherwise.
func (c *Config) Seed() int64 {
	if c.HasQuizSeed {
		return c.QuizSeed
	}
	return time.Now().UnixNano()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and remembers every set value that does not parse.
type envReader struct {
	errs []error
}

func (r *envReader) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return intVal
}

func (r *envReader) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return boolVal
}

// getEnvDuration takes Go durations such as 5s or 1m30s. A bare number has no unit and is rejected.
func (r *envReader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func parseInt64Env(key string) (int64, error) {
	value := getEnv(key, "")
	if value == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return id, nil
}
