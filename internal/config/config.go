package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FLOWRUNNER_CSV_PATH.
const EnvPrefix = "FLOWRUNNER"

// Extractor backends.
const (
	ExtractorPlaceholder = "placeholder"
	ExtractorGemini      = "gemini"
)

// Config holds all runtime settings. It is loaded once in main and handed to
// constructors.
type Config struct {
	TelegramBotToken string
	TelegramAPIBase  string
	TelegramRPS      float64

	CSVPath    string
	StagingDir string

	Port           string
	LogLevel       string
	AllowedOrigins []string

	WorkerCount int
	QueueSize   int

	FetchTimeout   time.Duration
	ExtractTimeout time.Duration

	Extractor    string
	GeminiAPIKey string
	GeminiModel  string

	DedupeTTL time.Duration

	GCSBucket          string
	GCSCredentialsFile string

	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	NotionToken      string
	NotionDatabaseID string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_api_base", "https://api.telegram.org")
	v.SetDefault("telegram_rps", 20)
	v.SetDefault("csv_path", "../data/keuangan.csv")
	v.SetDefault("staging_dir", os.TempDir())
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("worker_count", 5)
	v.SetDefault("queue_size", 100)
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("extract_timeout", "60s")
	v.SetDefault("extractor", ExtractorPlaceholder)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("dedupe_ttl", "10m")
	v.SetDefault("gcs_bucket", "")
	v.SetDefault("gcs_credentials_file", "")
	v.SetDefault("bigquery_project", "")
	v.SetDefault("bigquery_dataset", "finance")
	v.SetDefault("bigquery_table", "receipt_line_items")
	v.SetDefault("notion_token", "")
	v.SetDefault("notion_database_id", "")
}

// Load reads an optional .env file (current directory, then parent), an
// optional flowrunner.yaml from configDir, and FLOWRUNNER_* environment
// variables, in increasing order of precedence.
func Load(configDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Missing .env files are fine; the environment may already be set.
		_ = godotenv.Load("../.env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("flowrunner")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", receipt.ErrConfiguration, err)
		}
	}

	cfg := &Config{
		TelegramBotToken:   v.GetString("telegram_bot_token"),
		TelegramAPIBase:    strings.TrimRight(v.GetString("telegram_api_base"), "/"),
		TelegramRPS:        v.GetFloat64("telegram_rps"),
		CSVPath:            v.GetString("csv_path"),
		StagingDir:         v.GetString("staging_dir"),
		Port:               v.GetString("port"),
		LogLevel:           v.GetString("log_level"),
		AllowedOrigins:     splitList(v.GetString("cors_allowed_origins")),
		WorkerCount:        v.GetInt("worker_count"),
		QueueSize:          v.GetInt("queue_size"),
		FetchTimeout:       v.GetDuration("fetch_timeout"),
		ExtractTimeout:     v.GetDuration("extract_timeout"),
		Extractor:          strings.ToLower(v.GetString("extractor")),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		GeminiModel:        v.GetString("gemini_model"),
		DedupeTTL:          v.GetDuration("dedupe_ttl"),
		GCSBucket:          v.GetString("gcs_bucket"),
		GCSCredentialsFile: v.GetString("gcs_credentials_file"),
		BigQueryProject:    v.GetString("bigquery_project"),
		BigQueryDataset:    v.GetString("bigquery_dataset"),
		BigQueryTable:      v.GetString("bigquery_table"),
		NotionToken:        v.GetString("notion_token"),
		NotionDatabaseID:   v.GetString("notion_database_id"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList splits a comma separated setting, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings no component can run with. A missing Telegram
// token is not an error here: staging reports it per submission.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.CSVPath) == "" {
		problems = append(problems, "csv_path is empty")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "fetch_timeout must be positive")
	}
	if c.ExtractTimeout <= 0 {
		problems = append(problems, "extract_timeout must be positive")
	}
	if c.DedupeTTL <= 0 {
		problems = append(problems, "dedupe_ttl must be positive")
	}
	switch c.Extractor {
	case ExtractorPlaceholder:
	case ExtractorGemini:
		if c.GeminiAPIKey == "" {
			problems = append(problems, "gemini_api_key is required when extractor is gemini")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown extractor %q", c.Extractor))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", receipt.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// HasTelegramToken reports whether the bot token is configured.
func (c *Config) HasTelegramToken() bool {
	return strings.TrimSpace(c.TelegramBotToken) != ""
}
