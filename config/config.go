package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the comparison pipeline.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Index     IndexConfig     `mapstructure:"index"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the language-model provider configuration. One
// provider handle is built at startup and shared across requests.
type LLMConfig struct {
	Type               string        `mapstructure:"type"` // openai, groq-compatible endpoints via base_url
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	CompletionModel    string        `mapstructure:"completion_model"`
	EmbeddingModel     string        `mapstructure:"embedding_model"`
	EmbeddingDimension int           `mapstructure:"embedding_dimension"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if l.EmbeddingDimension <= 0 {
		return fmt.Errorf("llm.embedding_dimension must be > 0")
	}
	return nil
}

// FirecrawlConfig is shared by the firecrawl search and scrape backends.
type FirecrawlConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig selects the source-discovery backend.
type SearchConfig struct {
	Provider     string `mapstructure:"provider"` // firecrawl, serper
	SerperAPIKey string `mapstructure:"serper_api_key"`
	MaxSources   int    `mapstructure:"max_sources"`
}

func (s SearchConfig) Validate() error {
	if s.MaxSources <= 0 {
		return fmt.Errorf("search.max_sources must be > 0")
	}
	return nil
}

// FetchConfig selects the scraping backend.
type FetchConfig struct {
	Backend   string        `mapstructure:"backend"` // firecrawl, chromedp
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxChars  int           `mapstructure:"max_chars"`
	UserAgent string        `mapstructure:"user_agent"`
}

// IndexConfig selects the ephemeral vector-index backend.
type IndexConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, redis, pinecone
	Pinecone PineconeConfig `mapstructure:"pinecone"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

func (i IndexConfig) Validate() error {
	switch i.Backend {
	case "", "memory":
		return nil
	case "redis":
		if strings.TrimSpace(i.Redis.Addr) == "" {
			return fmt.Errorf("index.redis.addr required for redis backend")
		}
	case "pinecone":
		if strings.TrimSpace(i.Pinecone.APIKey) == "" {
			return fmt.Errorf("index.pinecone.api_key required for pinecone backend")
		}
		if strings.TrimSpace(i.Pinecone.IndexHost) == "" {
			return fmt.Errorf("index.pinecone.index_host required for pinecone backend")
		}
	default:
		return fmt.Errorf("unsupported index backend: %s", i.Backend)
	}
	return nil
}

// PineconeConfig points at a serverless index over HTTP.
type PineconeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	IndexHost string `mapstructure:"index_host"`
}

// RedisConfig contains connection settings for the redis index backend.
// TTL is a safety net only; namespaces are deleted explicitly at the end
// of every request.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PipelineConfig tunes chunking, retrieval and retry behavior.
type PipelineConfig struct {
	MaxChunkLen   int           `mapstructure:"max_chunk_len"`
	ChunkOverlap  int           `mapstructure:"chunk_overlap"`
	MinChunkChars int           `mapstructure:"min_chunk_chars"`
	TopK          int           `mapstructure:"top_k"`
	FetchWorkers  int           `mapstructure:"fetch_workers"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

func (p PipelineConfig) Validate() error {
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.MaxChunkLen {
		return fmt.Errorf("pipeline.chunk_overlap must be in [0, max_chunk_len)")
	}
	if p.TopK <= 0 {
		return fmt.Errorf("pipeline.top_k must be > 0")
	}
	if p.FetchWorkers <= 0 {
		return fmt.Errorf("pipeline.fetch_workers must be > 0")
	}
	return nil
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file with env overrides (CIBOT_*).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "120s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.type", "openai")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.embedding_dimension", 1536)
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 1000)
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("search.provider", "firecrawl")
	viper.SetDefault("search.max_sources", 3)
	viper.SetDefault("fetch.backend", "firecrawl")
	viper.SetDefault("fetch.timeout", "15s")
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("index.backend", "memory")
	viper.SetDefault("index.redis.ttl", "1h")
	viper.SetDefault("pipeline.max_chunk_len", 1000)
	viper.SetDefault("pipeline.chunk_overlap", 200)
	viper.SetDefault("pipeline.min_chunk_chars", 40)
	viper.SetDefault("pipeline.top_k", 5)
	viper.SetDefault("pipeline.fetch_workers", 4)
	viper.SetDefault("pipeline.max_retries", 2)
	viper.SetDefault("pipeline.retry_backoff", "500ms")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CIBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env and defaults carry a minimal setup
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	if err := config.Index.Validate(); err != nil {
		panic(err)
	}
	if err := config.Pipeline.Validate(); err != nil {
		panic(err)
	}
	return &config
}
