package config

import (
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"searchpdf/internal/fontsize"
	"searchpdf/internal/logger"
)

type Config struct {
	// Overlay font
	Font                   string
	UnencodableReplacement string

	// Font size solver
	FontSizeStrategy      string
	FontSizeInitial       string
	FontSizeStep          string
	FontSizePrecision     int
	FontSizeMaxIterations int

	// HTTP server
	ServerAddr     string
	MaxUploadBytes int64

	// Batch processing
	BatchWorkers int

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		Font:                       getEnv("OCR_FONT", fontsize.DefaultFont),
		UnencodableReplacement:     getEnvAllowEmpty("OCR_UNENCODABLE_REPLACEMENT", "?"),
		FontSizeStrategy:           getEnv("FONT_SIZE_STRATEGY", fontsize.StrategyDirect),
		FontSizeInitial:            getEnv("FONT_SIZE_INITIAL", "12"),
		FontSizeStep:               getEnv("FONT_SIZE_STEP", "0.25"),
		ServerAddr:                 getEnv("SERVER_ADDR", ":8080"),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:       getEnv("GOOGLE_SHEET_WORKSHEET", "OCR Overlay"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	var err error
	if config.FontSizePrecision, err = getEnvInt("FONT_SIZE_PRECISION", 2); err != nil {
		return nil, err
	}
	if config.FontSizeMaxIterations, err = getEnvInt("FONT_SIZE_MAX_ITERATIONS", 100000); err != nil {
		return nil, err
	}
	if config.BatchWorkers, err = getEnvInt("BATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 20*1024*1024)
	if err != nil {
		return nil, err
	}
	config.MaxUploadBytes = int64(maxUpload)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if _, err := c.FontSizeConfig(); err != nil {
		return err
	}
	if _, err := c.OverlayFont(); err != nil {
		return err
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	return nil
}

// FontSizeConfig returns the solver configuration.
func (c *Config) FontSizeConfig() (fontsize.Config, error) {
	switch c.FontSizeStrategy {
	case fontsize.StrategyDirect, fontsize.StrategyIterative:
	default:
		return fontsize.Config{}, fmt.Errorf("FONT_SIZE_STRATEGY must be %q or %q, got %q",
			fontsize.StrategyDirect, fontsize.StrategyIterative, c.FontSizeStrategy)
	}

	initial, err := decimal.NewFromString(c.FontSizeInitial)
	if err != nil || !initial.IsPositive() {
		return fontsize.Config{}, fmt.Errorf("FONT_SIZE_INITIAL must be a positive number, got %q", c.FontSizeInitial)
	}
	step, err := decimal.NewFromString(c.FontSizeStep)
	if err != nil || !step.IsPositive() {
		return fontsize.Config{}, fmt.Errorf("FONT_SIZE_STEP must be a positive number, got %q", c.FontSizeStep)
	}
	if c.FontSizePrecision < 0 {
		return fontsize.Config{}, fmt.Errorf("FONT_SIZE_PRECISION must not be negative")
	}
	if c.FontSizeMaxIterations <= 0 {
		return fontsize.Config{}, fmt.Errorf("FONT_SIZE_MAX_ITERATIONS must be positive")
	}

	return fontsize.Config{
		Strategy:      c.FontSizeStrategy,
		Initial:       initial,
		Step:          step,
		Precision:     int32(c.FontSizePrecision),
		MaxIterations: c.FontSizeMaxIterations,
	}, nil
}

// OverlayFont returns the configured core font. An empty replacement makes
// encoding strict.
func (c *Config) OverlayFont() (*fontsize.CoreFont, error) {
	var substitute rune
	if c.UnencodableReplacement != "" {
		if utf8.RuneCountInString(c.UnencodableReplacement) != 1 {
			return nil, fmt.Errorf("OCR_UNENCODABLE_REPLACEMENT must be a single character, got %q", c.UnencodableReplacement)
		}
		substitute, _ = utf8.DecodeRuneInString(c.UnencodableReplacement)
	}

	font, err := fontsize.NewCoreFont(c.Font, substitute)
	if err != nil {
		return nil, fmt.Errorf("OCR_FONT: %w", err)
	}
	return font, nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
