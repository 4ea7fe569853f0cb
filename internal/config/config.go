// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Registry  RegistryConfig  `mapstructure:"registry"`
	Run       RunConfig       `mapstructure:"run"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Convert   ConvertConfig   `mapstructure:"convert"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RegistryConfig controls access to the filings registry.
type RegistryConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	BaseURL        string        `mapstructure:"base_url"`
	DataBaseURL    string        `mapstructure:"data_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// RunConfig describes one batch run.
type RunConfig struct {
	TickersCSV string `mapstructure:"tickers_csv"`
	OutputDir  string `mapstructure:"output_dir"`
	ResultFile string `mapstructure:"result_file"`
	Resume     bool   `mapstructure:"resume"`
}

// StorageConfig selects where normalized artifacts are published.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Parent   string             `mapstructure:"parent"`
	GCS      GCSStorageConfig   `mapstructure:"gcs"`
	Local    LocalStorageConfig `mapstructure:"local"`
}

// GCSStorageConfig configures the Cloud Storage backend.
type GCSStorageConfig struct {
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// ConvertConfig selects the document renderer.
type ConvertConfig struct {
	Renderer      string        `mapstructure:"renderer"`
	ChromeTimeout time.Duration `mapstructure:"chrome_timeout"`
}

// LedgerConfig selects where per-ticker outcomes are recorded.
type LedgerConfig struct {
	Provider string               `mapstructure:"provider"`
	Postgres PostgresLedgerConfig `mapstructure:"postgres"`
}

// PostgresLedgerConfig configures the Postgres ledger backend.
type PostgresLedgerConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PublisherConfig configures completion notifications.
type PublisherConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"tickers-csv":  "run.tickers_csv",
	"output-dir":   "run.output_dir",
	"result-csv":   "run.result_file",
	"resume":       "run.resume",
	"metrics-addr": "metrics.addr",
}

// legacyEnv lists environment names the original deployment used.
var legacyEnv = map[string]string{
	"registry.user_agent": "SEC_USER_AGENT",
	"storage.gcs.bucket":  "GOOGLE_CLOUD_STORAGE_BUCKET",
	"storage.parent":      "GOOGLE_DRIVE_PARENT_FOLDER_ID",
}

// LoadEnvFile exports the variables of a dotenv file without overriding
// ones already set. An empty path tries ./.env and ignores its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk, environment, and optional CLI flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, legacy := range legacyEnv {
		envKey := "ARCHIVER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry.base_url", "https://www.sec.gov")
	v.SetDefault("registry.data_base_url", "https://data.sec.gov")
	v.SetDefault("registry.timeout", 20*time.Second)
	v.SetDefault("registry.min_interval", 200*time.Millisecond)
	v.SetDefault("registry.max_attempts", 5)
	v.SetDefault("registry.backoff_initial", time.Second)
	v.SetDefault("registry.backoff_max", 16*time.Second)
	v.SetDefault("run.tickers_csv", "")
	v.SetDefault("run.output_dir", "output")
	v.SetDefault("run.result_file", "results.csv")
	v.SetDefault("run.resume", false)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.gcs.public_base_url", "https://storage.googleapis.com")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("convert.renderer", "text")
	v.SetDefault("convert.chrome_timeout", time.Minute)
	v.SetDefault("ledger.provider", "csv")
	v.SetDefault("ledger.postgres.dsn", "")
	v.SetDefault("ledger.postgres.table", "company_results")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("publisher.pubsub.project_id", "")
	v.SetDefault("publisher.pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Registry.UserAgent) == "" {
		return &ConfigurationError{
			Key:    "registry.user_agent",
			Reason: "is required (set SEC_USER_AGENT), e.g. 'First Last email@domain.com'",
		}
	}
	if c.Registry.Timeout <= 0 {
		return &ConfigurationError{Key: "registry.timeout", Reason: "must be > 0"}
	}
	if c.Registry.MinInterval < 0 {
		return &ConfigurationError{Key: "registry.min_interval", Reason: "must be >= 0"}
	}
	if c.Registry.MaxAttempts <= 0 {
		return &ConfigurationError{Key: "registry.max_attempts", Reason: "must be > 0"}
	}
	if c.Registry.BackoffInitial < 0 || c.Registry.BackoffMax < c.Registry.BackoffInitial {
		return &ConfigurationError{Key: "registry.backoff_max", Reason: "must be >= registry.backoff_initial >= 0"}
	}
	if c.Run.OutputDir == "" {
		return &ConfigurationError{Key: "run.output_dir", Reason: "must be set"}
	}
	if c.Run.ResultFile == "" {
		return &ConfigurationError{Key: "run.result_file", Reason: "must be set"}
	}
	switch c.Storage.Provider {
	case "local":
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return &ConfigurationError{Key: "storage.gcs.bucket", Reason: "must be set when storage.provider is gcs"}
		}
	default:
		return &ConfigurationError{Key: "storage.provider", Reason: fmt.Sprintf("unknown provider %q", c.Storage.Provider)}
	}
	switch c.Convert.Renderer {
	case "text", "chrome":
	default:
		return &ConfigurationError{Key: "convert.renderer", Reason: fmt.Sprintf("unknown renderer %q", c.Convert.Renderer)}
	}
	switch c.Ledger.Provider {
	case "csv":
	case "postgres":
		if c.Ledger.Postgres.DSN == "" {
			return &ConfigurationError{Key: "ledger.postgres.dsn", Reason: "must be set when ledger.provider is postgres"}
		}
	default:
		return &ConfigurationError{Key: "ledger.provider", Reason: fmt.Sprintf("unknown provider %q", c.Ledger.Provider)}
	}
	switch c.Publisher.Provider {
	case "noop":
	case "pubsub":
		if c.Publisher.PubSub.ProjectID == "" || c.Publisher.PubSub.Topic == "" {
			return &ConfigurationError{Key: "publisher.pubsub", Reason: "project_id and topic must be set when publisher.provider is pubsub"}
		}
	default:
		return &ConfigurationError{Key: "publisher.provider", Reason: fmt.Sprintf("unknown provider %q", c.Publisher.Provider)}
	}
	return nil
}

// ResultPath is the ledger file location for the csv ledger.
func (c Config) ResultPath() string {
	return filepath.Join(c.Run.OutputDir, c.Run.ResultFile)
}

// LocalStorageDir is where the local storage backend keeps containers.
func (c Config) LocalStorageDir() string {
	if c.Storage.Local.BaseDir != "" {
		return c.Storage.Local.BaseDir
	}
	return filepath.Join(c.Run.OutputDir, "remote")
}
