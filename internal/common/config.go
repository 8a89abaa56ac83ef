package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store       StoreConfig
	OCR         OCRConfig
	Arbitration ArbitrationConfig
	Pipeline    PipelineConfig
}

// StoreConfig holds snapshot-store configuration
type StoreConfig struct {
	DSN string // sqlite DSN, e.g. "file:statements.db" or ":memory:"
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftoppm    string
	Tesseract   string
	TessdataDir string
	DPI         int
	MaxPages    int
}

// ArbitrationConfig holds the external reasoning service configuration
type ArbitrationConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	Timeout        time.Duration
	MaxConcurrency int
}

// PipelineConfig holds run defaults that Options can override per run.
type PipelineConfig struct {
	Languages           []string
	ValueTolerance      float64
	ConfidenceThreshold float64
	FreeTextWindow      int
	ArbitrationEnabled  bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			DSN: getEnv("STORE_DSN", "file:statements.db"),
		},
		OCR: OCRConfig{
			Pdftoppm:    getEnv("PDFTOPPM", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
		},
		Arbitration: ArbitrationConfig{
			BaseURL:        getEnv("ARBITER_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("ARBITER_API_KEY", ""),
			Model:          getEnv("ARBITER_MODEL", "gpt-4o-mini"),
			Temperature:    getEnvAsFloat32("ARBITER_TEMPERATURE", 0.0),
			Timeout:        getEnvAsDuration("ARBITER_TIMEOUT", 45*time.Second),
			MaxConcurrency: getEnvAsInt("ARBITER_MAX_CONCURRENCY", 4),
		},
		Pipeline: PipelineConfig{
			Languages:           []string{"eng"},
			ValueTolerance:      getEnvAsFloat64("VALUE_TOLERANCE", 0.01),
			ConfidenceThreshold: getEnvAsFloat64("CONFIDENCE_THRESHOLD", 0.55),
			FreeTextWindow:      getEnvAsInt("FREETEXT_WINDOW", 160),
			ArbitrationEnabled:  getEnvAsBool("ARBITRATION_ENABLED", false),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration before any stage runs.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "STORE_DSN is required", ErrInvalidInput)
	}
	if c.Pipeline.ArbitrationEnabled && c.Arbitration.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "ARBITER_API_KEY is required when arbitration is enabled", ErrInvalidInput)
	}
	if c.Pipeline.ValueTolerance <= 0 {
		return NewAppError("CONFIG_ERROR", "VALUE_TOLERANCE must be positive", ErrInvalidInput)
	}
	return nil
}
