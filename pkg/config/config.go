package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Mock        bool    `yaml:"mock"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature *float64 `yaml:"temperature"` // unset uses the model server default
}

type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
}

type ServerConfig struct {
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize       int  `yaml:"chunk_size"`
	ChunkOverlap    int  `yaml:"chunk_overlap"`
	RemoveStopwords bool `yaml:"remove_stopwords"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Log       LogConfig       `yaml:"log"`
}

// envOverrides are read once at startup and win over the config file.
type envOverrides struct {
	MockLLM     string `envconfig:"USE_MOCK_LLM"`
	OllamaHost  string `envconfig:"OLLAMA_HOST"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Store       string `envconfig:"RECALL_STORE"`
	DBPath      string `envconfig:"RECALL_DB_PATH"`
	Port        int    `envconfig:"PORT"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/recall/config.yaml"),
			"/etc/recall/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := mergeWithEnv(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "tinyllama"
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Type == "" {
		config.Embedder.Type = "hash"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.Dimension == 0 {
		if config.Embedder.Type == "ollama" {
			config.Embedder.Dimension = 768
		} else {
			config.Embedder.Dimension = 384
		}
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "badger"
	}
	if config.Store.Path == "" {
		config.Store.Path = "./db"
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.RateLimit > 0 && config.Server.Burst == 0 {
		config.Server.Burst = int(config.Server.RateLimit) + 1
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeWithEnv(config *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("error reading environment: %w", err)
	}

	if env.MockLLM != "" {
		config.LLM.Mock = env.MockLLM == "1"
	}
	if env.OllamaHost != "" {
		config.LLM.BaseURL = env.OllamaHost
	}
	if env.DatabaseURL != "" {
		config.Database.URL = env.DatabaseURL
	}
	if env.Store != "" {
		config.Store.Backend = env.Store
	}
	if env.DBPath != "" {
		config.Store.Path = env.DBPath
	}
	if env.Port != 0 {
		config.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		config.Log.Level = env.LogLevel
	}
	return nil
}
