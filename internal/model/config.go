package model

import (
	"path/filepath"
	"time"
)

// Config holds the complete petitionlens configuration
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Topics  TopicsConfig  `yaml:"topics" mapstructure:"topics"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// DataConfig controls where datasets live on disk
type DataConfig struct {
	Dir                string `yaml:"dir" mapstructure:"dir"`
	RawFile            string `yaml:"raw_file" mapstructure:"raw_file"`
	StoreFile          string `yaml:"store_file" mapstructure:"store_file"`
	TopicsFile         string `yaml:"topics_file" mapstructure:"topics_file"`
	SavedTopicsFile    string `yaml:"saved_topics_file" mapstructure:"saved_topics_file"`
	LedgerFile         string `yaml:"ledger_file" mapstructure:"ledger_file"`
	ViewsDir           string `yaml:"views_dir,omitempty" mapstructure:"views_dir"`
	ConstituencyFile   string `yaml:"constituency_file,omitempty" mapstructure:"constituency_file"`
	StrictConstituency bool   `yaml:"strict_constituency" mapstructure:"strict_constituency"`
}

// HTTPConfig controls outbound HTTP behavior
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS  bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// FetchConfig controls the petitions API crawl
type FetchConfig struct {
	StartURL          string  `yaml:"start_url" mapstructure:"start_url"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RespectRobots     bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig controls the fetch response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig configures the text-generation provider used for topic classification
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // never written to disk
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// TopicsConfig controls topic classification
type TopicsConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Limit             int  `yaml:"limit" mapstructure:"limit"` // 0 = no limit
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	RefreshCron string `yaml:"refresh_cron,omitempty" mapstructure:"refresh_cron"`
	Metrics     bool   `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:                "./data",
			RawFile:            "all_petitions.json",
			StoreFile:          "constituencies_data.json",
			TopicsFile:         "topics_by_petition.json",
			SavedTopicsFile:    "SAVED_topics_by_petition.json",
			LedgerFile:         "topics.db",
			StrictConstituency: true,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "petitionlens/0.1 (+https://github.com/ppiankov/petitionlens)",
			MaxBodyBytes: 8_000_000,
		},
		Fetch: FetchConfig{
			StartURL:          "https://petition.parliament.uk/petitions.json?state=all",
			Workers:           4,
			RequestsPerSecond: 5,
			BurstSize:         5,
			MaxAttempts:       3,
			RespectRobots:     true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "./data/.cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   30,
			MaxTokens: 20,
		},
		Topics: TopicsConfig{
			Enabled:           false,
			RequestsPerMinute: 15,
		},
		Server: ServerConfig{
			Addr:    ":3000",
			Metrics: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// RawPath returns the path of the raw petitions file
func (d DataConfig) RawPath() string { return filepath.Join(d.Dir, d.RawFile) }

// StorePath returns the path of the aggregate store file
func (d DataConfig) StorePath() string { return filepath.Join(d.Dir, d.StoreFile) }

// TopicsPath returns the path of the exported topic map
func (d DataConfig) TopicsPath() string { return filepath.Join(d.Dir, d.TopicsFile) }

// SavedTopicsPath returns the path of a previously saved topic map used to seed the ledger
func (d DataConfig) SavedTopicsPath() string { return filepath.Join(d.Dir, d.SavedTopicsFile) }

// LedgerPath returns the path of the classification ledger
func (d DataConfig) LedgerPath() string { return filepath.Join(d.Dir, d.LedgerFile) }
