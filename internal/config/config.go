package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Rerank   Rerank   `mapstructure:"rerank"`
	Extract  Extract  `mapstructure:"extract"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Search   Search   `mapstructure:"search"`
	Server   Server   `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
	UserID  string `mapstructure:"user_id"`
}

// AI holds Gemini LLM and embedding configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Rerank holds Cohere cross-encoder configuration
type Rerank struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Extract holds content extraction configuration
type Extract struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Pipeline holds ingestion retry configuration
type Pipeline struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// Search holds retrieval configuration
type Search struct {
	ScoreThreshold  float64 `mapstructure:"score_threshold"`
	RerankThreshold float64 `mapstructure:"rerank_threshold"`
	FetchMultiplier int     `mapstructure:"fetch_multiplier"`
	RerankEnabled   bool    `mapstructure:"rerank_enabled"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

var loaded *Config

// Load reads configuration from .env, the optional config file, and the
// environment, in that order of increasing precedence.
func Load(cfgFile string) (*Config, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	setDefaults()
	bindEnvironmentVariables()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".later")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; only hard-fail on parse errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(viper.ConfigFileUsed()); statErr == nil || cfgFile != "" {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loaded = cfg
	return cfg, nil
}

// Get returns the last loaded configuration, loading defaults when Load has
// not been called.
func Get() *Config {
	if loaded == nil {
		cfg, err := Load("")
		if err != nil {
			cfg = &Config{}
		}
		loaded = cfg
	}
	return loaded
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", defaultDataDir())
	viper.SetDefault("app.user_id", "local")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.timeout", "30s")

	viper.SetDefault("rerank.model", "rerank-english-v3.0")
	viper.SetDefault("rerank.timeout", "15s")

	viper.SetDefault("extract.timeout", "30s")
	viper.SetDefault("extract.user_agent", "later/1.0")

	viper.SetDefault("pipeline.max_retries", 3)
	viper.SetDefault("pipeline.retry_backoff", "500ms")

	viper.SetDefault("search.score_threshold", 0.35)
	viper.SetDefault("search.rerank_threshold", 0.35)
	viper.SetDefault("search.fetch_multiplier", 4)
	viper.SetDefault("search.rerank_enabled", true)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8484)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.cors_origins", []string{"*"})
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys("rerank.api_key", []string{
		"COHERE_API_KEY",
	})
	bindEnvKeys("app.data_dir", []string{
		"LATER_DATA_DIR",
	})
	bindEnvKeys("app.debug", []string{
		"LATER_DEBUG",
		"DEBUG",
	})
	bindEnvKeys("server.port", []string{
		"LATER_PORT",
		"PORT",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".later-data"
	}
	return filepath.Join(home, ".later-data")
}
