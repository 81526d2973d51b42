package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         App         `mapstructure:"app"`
	Gemini      Gemini      `mapstructure:"gemini"`
	Ingest      Ingest      `mapstructure:"ingest"`
	Clustering  Clustering  `mapstructure:"clustering"`
	Publication Publication `mapstructure:"publication"`
	Server      Server      `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Gemini holds Google Gemini configuration
type Gemini struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	PaidTier       bool   `mapstructure:"paid_tier"`
}

// Ingest holds ingestion engine configuration
type Ingest struct {
	SourcesFile       string `mapstructure:"sources_file"`
	MaxItemAgeHours   int    `mapstructure:"max_item_age_hours"`
	BatchSize         int    `mapstructure:"batch_size"`
	BatchDelayMs      int    `mapstructure:"batch_delay_ms"`
	SourceConcurrency int    `mapstructure:"source_concurrency"`
	FetchTimeoutSec   int    `mapstructure:"fetch_timeout_sec"`
}

// Clustering holds similarity-based clustering parameters
type Clustering struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MatchCount          int     `mapstructure:"match_count"`
	WindowDays          int     `mapstructure:"window_days"`
}

// Publication holds the editorial preconditions for rewriting a cluster
type Publication struct {
	MinScore         float64 `mapstructure:"min_score"`
	MinSources       int     `mapstructure:"min_sources"`
	MaturityHours    int     `mapstructure:"maturity_hours"`
	IgnoreMaturity   bool    `mapstructure:"ignore_maturity"`
	FreshOnly        bool    `mapstructure:"fresh_only"`
	FreshWindowHours int     `mapstructure:"fresh_window_hours"`
}

// Server holds the HTTP surface configuration
type Server struct {
	Addr string `mapstructure:"addr"`
}

var globalConfig *Config

// Load reads configuration from .env, the config file, and NEWSDESK_*
// environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsdesk")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.SetEnvPrefix("NEWSDESK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The Gemini key commonly lives in GEMINI_API_KEY outside the prefix.
	if config.Gemini.APIKey == "" {
		config.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	globalConfig = config
	return config, nil
}

// Get returns the loaded configuration, loading with defaults if needed.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			cfg = &Config{}
		}
		globalConfig = cfg
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.data_dir", ".newsdesk")
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("gemini.paid_tier", false)

	viper.SetDefault("ingest.sources_file", "sources.yaml")
	viper.SetDefault("ingest.max_item_age_hours", 48)
	viper.SetDefault("ingest.batch_size", 10)
	viper.SetDefault("ingest.batch_delay_ms", 250)
	viper.SetDefault("ingest.source_concurrency", 4)
	// 0 = use the resolved policy's fetch timeout.
	viper.SetDefault("ingest.fetch_timeout_sec", 0)

	viper.SetDefault("clustering.similarity_threshold", 0.82)
	viper.SetDefault("clustering.match_count", 5)
	viper.SetDefault("clustering.window_days", 3)

	viper.SetDefault("publication.min_score", 6.0)
	viper.SetDefault("publication.min_sources", 2)
	viper.SetDefault("publication.maturity_hours", 3)
	viper.SetDefault("publication.ignore_maturity", false)
	viper.SetDefault("publication.fresh_only", true)
	viper.SetDefault("publication.fresh_window_hours", 24)

	viper.SetDefault("server.addr", ":8080")
}
