package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External providers
	Quotes QuotesConfig

	// Staging policy
	Policy PolicyConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// QuotesConfig holds market snapshot provider configuration
type QuotesConfig struct {
	BaseURL     string
	StreamURL   string        // websocket endpoint ("" disables streaming)
	CacheTTL    time.Duration // snapshot cache TTL
	RatePerSec  float64       // REST 호출 허용률
	RateBurst   int
	HTTPTimeout time.Duration
}

// PolicyConfig holds staging/approval policy
// ⭐ SSOT: 승인 정책 수치는 전부 설정값, 코드에 하드코딩 금지
type PolicyConfig struct {
	// approval_required 판정 임계값
	HighRiskThreshold float64 // 리스크 점수가 이 값을 넘으면 승인 필요
	LargeOrderQty     int64   // 수량이 이 값을 넘으면 승인 필요

	// 리스크 가중치 (합 = 1.0)
	WeightPositionSize  float64
	WeightVolatility    float64
	WeightConcentration float64
	WeightMarketRegime  float64
	WeightStrategy      float64

	// 시장 데이터 결측 시 보수적 상한 점수
	MissingDataCeiling float64

	// 만료
	MaxOrderAge   time.Duration
	SweepSchedule string // cron 표현식 (초 필드 포함)

	// 낙관적 동시성 재시도
	RetryMaxAttempts int
	RetryBackoff     time.Duration

	// 스코어링/컴플라이언스 평가 단계 타임아웃
	ScoringTimeout time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8097"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Quotes: QuotesConfig{
			BaseURL:     getEnv("QUOTES_BASE_URL", "https://quotes.internal.wonny.dev"),
			StreamURL:   getEnv("QUOTES_STREAM_URL", ""),
			CacheTTL:    getEnvAsDuration("QUOTES_CACHE_TTL", "10s"),
			RatePerSec:  getEnvAsFloat("QUOTES_RATE_PER_SEC", 20),
			RateBurst:   getEnvAsInt("QUOTES_RATE_BURST", 5),
			HTTPTimeout: getEnvAsDuration("QUOTES_HTTP_TIMEOUT", "10s"),
		},

		Policy: PolicyConfig{
			HighRiskThreshold: getEnvAsFloat("POLICY_HIGH_RISK_THRESHOLD", 75.0),
			LargeOrderQty:     int64(getEnvAsInt("POLICY_LARGE_ORDER_QTY", 1000)),

			WeightPositionSize:  getEnvAsFloat("POLICY_WEIGHT_POSITION_SIZE", 0.30),
			WeightVolatility:    getEnvAsFloat("POLICY_WEIGHT_VOLATILITY", 0.25),
			WeightConcentration: getEnvAsFloat("POLICY_WEIGHT_CONCENTRATION", 0.20),
			WeightMarketRegime:  getEnvAsFloat("POLICY_WEIGHT_MARKET_REGIME", 0.15),
			WeightStrategy:      getEnvAsFloat("POLICY_WEIGHT_STRATEGY", 0.10),

			MissingDataCeiling: getEnvAsFloat("POLICY_MISSING_DATA_CEILING", 90.0),

			MaxOrderAge:   getEnvAsDuration("POLICY_MAX_ORDER_AGE", "24h"),
			SweepSchedule: getEnv("POLICY_SWEEP_SCHEDULE", "0 */5 * * * *"),

			RetryMaxAttempts: getEnvAsInt("POLICY_RETRY_MAX_ATTEMPTS", 3),
			RetryBackoff:     getEnvAsDuration("POLICY_RETRY_BACKOFF", "25ms"),

			ScoringTimeout: getEnvAsDuration("POLICY_SCORING_TIMEOUT", "5s"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	return c.Policy.Validate()
}

// Validate checks policy invariants
// 가중치 합 = 1.0, 임계값 범위 체크
func (p *PolicyConfig) Validate() error {
	sum := p.WeightPositionSize + p.WeightVolatility + p.WeightConcentration +
		p.WeightMarketRegime + p.WeightStrategy
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("risk weights must sum to 1.0, got %.6f", sum)
	}

	if p.HighRiskThreshold < 0 || p.HighRiskThreshold > 100 {
		return fmt.Errorf("POLICY_HIGH_RISK_THRESHOLD must be in [0,100], got %.2f", p.HighRiskThreshold)
	}
	if p.MissingDataCeiling < 0 || p.MissingDataCeiling > 100 {
		return fmt.Errorf("POLICY_MISSING_DATA_CEILING must be in [0,100], got %.2f", p.MissingDataCeiling)
	}
	if p.LargeOrderQty <= 0 {
		return fmt.Errorf("POLICY_LARGE_ORDER_QTY must be > 0, got %d", p.LargeOrderQty)
	}
	if p.MaxOrderAge <= 0 {
		return fmt.Errorf("POLICY_MAX_ORDER_AGE must be > 0")
	}
	if p.RetryMaxAttempts <= 0 {
		return fmt.Errorf("POLICY_RETRY_MAX_ATTEMPTS must be > 0, got %d", p.RetryMaxAttempts)
	}
	if p.ScoringTimeout <= 0 {
		return fmt.Errorf("POLICY_SCORING_TIMEOUT must be > 0")
	}

	return nil
}

// RiskWeights returns the configured weights keyed by factor name
func (p *PolicyConfig) RiskWeights() map[string]float64 {
	return map[string]float64{
		"position_size": p.WeightPositionSize,
		"volatility":    p.WeightVolatility,
		"concentration": p.WeightConcentration,
		"market_regime": p.WeightMarketRegime,
		"strategy":      p.WeightStrategy,
	}
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
