package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Generator  GeneratorConfig
	GigaChat   GigaChatConfig
	Catalog    CatalogConfig
	Quote      QuotePolicyConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence over the individual fields
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	RunMigrations      bool
	Enabled            bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// GeneratorConfig holds the OpenAI-compatible quote generator configuration
type GeneratorConfig struct {
	Provider        string // "openai" or "gigachat"
	APIKey          string
	APIBase         string
	ChatModel       string
	ChatTemperature float64
	ChatTopP        float64
	ChatMaxTokens   int
	ChatExtraBody   string // JSON string for extra_body (e.g., {"chat_template_kwargs":{"thinking":true}})
	JSONMode        bool   // request response_format=json_object
	Timeout         int
	Enabled         bool
}

// GigaChatConfig holds GigaChat provider configuration
type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	Temperature        float64
	TopP               float64
	MaxTokens          int
	RepetitionPenalty  float64
	InsecureSkipVerify bool
}

// CatalogConfig points at the product inventory handed to the generator
type CatalogConfig struct {
	Path     string
	Currency string
}

// QuotePolicyConfig holds the business rules applied to generated quotes.
// Thresholds are configuration rather than constants so the commercial team
// can tune them without a release.
type QuotePolicyConfig struct {
	MaxAttempts int

	MarginLow      float64
	MarginHigh     float64
	FallbackMargin float64

	BudgetMin float64
	BudgetMax float64

	CaseCeiling      float64
	CaseShareEnabled bool
	CaseShareMin     float64
	CaseShareMax     float64

	GPUBandsEnabled bool
	GPUTierLow      float64 // budgets strictly below this use the entry band
	GPUTierHigh     float64 // budgets strictly above this use the high-end band
	GPUBandEntry    BandConfig
	GPUBandMid      BandConfig
	GPUBandHigh     BandConfig

	RequireCompleteness bool
}

// BandConfig is an accepted GPU/CPU price multiplier range
type BandConfig struct {
	Min      float64
	Max      float64
	Critical float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", ""))),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "kiwigeek"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
			RunMigrations:      getEnvAsBool("PG_RUN_MIGRATIONS", true),
			Enabled:            getEnvAsBool("PG_ENABLED", true),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Generator: GeneratorConfig{
			Provider:        strings.ToLower(getEnv("GENERATOR_PROVIDER", "openai")),
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			APIBase:         getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature: getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.15),
			ChatTopP:        getEnvAsFloat("OPENAI_CHAT_TOP_P", 0.85),
			ChatMaxTokens:   getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 8192),
			ChatExtraBody:   getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			JSONMode:        getEnvAsBool("OPENAI_JSON_MODE", true),
			Timeout:         getEnvAsInt("OPENAI_TIMEOUT", 90),
			Enabled:         getEnv("OPENAI_API_KEY", "") != "",
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			Temperature:        getEnvAsFloat("GIGACHAT_TEMPERATURE", 0.15),
			TopP:               getEnvAsFloat("GIGACHAT_TOP_P", 0.85),
			MaxTokens:          getEnvAsInt("GIGACHAT_MAX_TOKENS", 8192),
			RepetitionPenalty:  getEnvAsFloat("GIGACHAT_REPETITION_PENALTY", 1.0),
			InsecureSkipVerify: getEnvAsBool("GIGACHAT_INSECURE_SKIP_VERIFY", false),
		},
		Catalog: CatalogConfig{
			Path:     getEnv("CATALOG_PATH", "catalogo_kiwigeek.json"),
			Currency: getEnv("CATALOG_CURRENCY", "S/"),
		},
		Quote: QuotePolicyConfig{
			MaxAttempts:      getEnvAsInt("QUOTE_MAX_ATTEMPTS", 3),
			MarginLow:        getEnvAsFloat("QUOTE_MARGIN_LOW", 0.10),
			MarginHigh:       getEnvAsFloat("QUOTE_MARGIN_HIGH", 0.10),
			FallbackMargin:   getEnvAsFloat("QUOTE_FALLBACK_MARGIN", 0.10),
			BudgetMin:        getEnvAsFloat("QUOTE_BUDGET_MIN", 100),
			BudgetMax:        getEnvAsFloat("QUOTE_BUDGET_MAX", 100000),
			CaseCeiling:      getEnvAsFloat("QUOTE_CASE_CEILING", 500),
			CaseShareEnabled: getEnvAsBool("QUOTE_CASE_SHARE_ENABLED", false),
			CaseShareMin:     getEnvAsFloat("QUOTE_CASE_SHARE_MIN", 0.03),
			CaseShareMax:     getEnvAsFloat("QUOTE_CASE_SHARE_MAX", 0.05),
			GPUBandsEnabled:  getEnvAsBool("QUOTE_GPU_BANDS_ENABLED", false),
			GPUTierLow:       getEnvAsFloat("QUOTE_GPU_TIER_LOW", 5000),
			GPUTierHigh:      getEnvAsFloat("QUOTE_GPU_TIER_HIGH", 10000),
			GPUBandEntry: BandConfig{
				Min:      getEnvAsFloat("QUOTE_GPU_ENTRY_MIN", 1.7),
				Max:      getEnvAsFloat("QUOTE_GPU_ENTRY_MAX", 2.0),
				Critical: getEnvAsFloat("QUOTE_GPU_ENTRY_CRITICAL", 2.5),
			},
			GPUBandMid: BandConfig{
				Min:      getEnvAsFloat("QUOTE_GPU_MID_MIN", 2.2),
				Max:      getEnvAsFloat("QUOTE_GPU_MID_MAX", 3.0),
				Critical: getEnvAsFloat("QUOTE_GPU_MID_CRITICAL", 4.0),
			},
			GPUBandHigh: BandConfig{
				Min:      getEnvAsFloat("QUOTE_GPU_HIGH_MIN", 2.5),
				Max:      getEnvAsFloat("QUOTE_GPU_HIGH_MAX", 5.0),
				Critical: getEnvAsFloat("QUOTE_GPU_HIGH_CRITICAL", 6.0),
			},
			RequireCompleteness: getEnvAsBool("QUOTE_REQUIRE_COMPLETENESS", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Quote.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultQuotePolicy returns the policy used when no environment overrides exist
func DefaultQuotePolicy() QuotePolicyConfig {
	return QuotePolicyConfig{
		MaxAttempts:         3,
		MarginLow:           0.10,
		MarginHigh:          0.10,
		FallbackMargin:      0.10,
		BudgetMin:           100,
		BudgetMax:           100000,
		CaseCeiling:         500,
		CaseShareMin:        0.03,
		CaseShareMax:        0.05,
		GPUTierLow:          5000,
		GPUTierHigh:         10000,
		GPUBandEntry:        BandConfig{Min: 1.7, Max: 2.0, Critical: 2.5},
		GPUBandMid:          BandConfig{Min: 2.2, Max: 3.0, Critical: 4.0},
		GPUBandHigh:         BandConfig{Min: 2.5, Max: 5.0, Critical: 6.0},
		RequireCompleteness: true,
	}
}

// Validate rejects policies the validator cannot apply
func (q QuotePolicyConfig) Validate() error {
	if q.MaxAttempts < 1 {
		return fmt.Errorf("QUOTE_MAX_ATTEMPTS must be at least 1, got %d", q.MaxAttempts)
	}
	if q.MarginLow < 0 || q.MarginLow >= 1 {
		return fmt.Errorf("QUOTE_MARGIN_LOW must be in [0, 1), got %f", q.MarginLow)
	}
	if q.MarginHigh < 0 {
		return fmt.Errorf("QUOTE_MARGIN_HIGH must be non-negative, got %f", q.MarginHigh)
	}
	if q.BudgetMin <= 0 || q.BudgetMax <= q.BudgetMin {
		return fmt.Errorf("budget plausibility window [%f, %f] is invalid", q.BudgetMin, q.BudgetMax)
	}
	if q.CaseShareEnabled && q.CaseShareMin > q.CaseShareMax {
		return fmt.Errorf("case share band [%f, %f] is invalid", q.CaseShareMin, q.CaseShareMax)
	}
	for name, band := range map[string]BandConfig{"entry": q.GPUBandEntry, "mid": q.GPUBandMid, "high": q.GPUBandHigh} {
		if band.Min > band.Max || band.Max > band.Critical {
			return fmt.Errorf("GPU %s band must satisfy min <= max <= critical, got %+v", name, band)
		}
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
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
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
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
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}
