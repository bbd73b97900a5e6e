package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xhad/ragingest/pkg/processor"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Database struct {
		URL           string `yaml:"url"`
		ChunkTable    string `yaml:"chunk_table"`
		DocumentTable string `yaml:"document_table"`
		VectorDim     int    `yaml:"vector_dim"`
		BatchSize     int    `yaml:"batch_size"`
	} `yaml:"database"`

	Embedding struct {
		Provider      string `yaml:"provider"`
		Model         string `yaml:"model"`
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		BatchSize     int    `yaml:"batch_size"`
		TokenEncoding string `yaml:"token_encoding"`
	} `yaml:"embedding"`

	ObjectStore struct {
		Backend   string `yaml:"backend"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Region    string `yaml:"region"`
		Root      string `yaml:"root"`
	} `yaml:"object_store"`

	Processor struct {
		ChunkSize    int  `yaml:"chunk_size"`
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Ingest struct {
		MaxFileSize    int64         `yaml:"max_file_size"`
		StoreTimeout   time.Duration `yaml:"store_timeout"`
		EmbedTimeout   time.Duration `yaml:"embed_timeout"`
		PersistTimeout time.Duration `yaml:"persist_timeout"`
		Workers        int           `yaml:"workers"`
	} `yaml:"ingest"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth"`
		RateLimit         float64  `yaml:"rate_limit"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragingest/config.yaml"),
			"/etc/ragingest/config.yaml",
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

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 5 * time.Minute
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 15 * time.Second
	}

	if config.Database.ChunkTable == "" {
		config.Database.ChunkTable = "document_chunks"
	}
	if config.Database.DocumentTable == "" {
		config.Database.DocumentTable = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}
	if config.Embedding.TokenEncoding == "" {
		config.Embedding.TokenEncoding = "cl100k_base"
	}

	if config.ObjectStore.Backend == "" {
		config.ObjectStore.Backend = "local"
	}
	if config.ObjectStore.Bucket == "" {
		config.ObjectStore.Bucket = "ragingest"
	}
	if config.ObjectStore.Root == "" {
		config.ObjectStore.Root = "data/objects"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = processor.DefaultChunkSize
	}
	if config.Processor.ChunkOverlap == nil {
		overlap := processor.OverlapFor(config.Processor.ChunkSize)
		config.Processor.ChunkOverlap = &overlap
	}

	if config.Ingest.MaxFileSize == 0 {
		config.Ingest.MaxFileSize = 50 << 20
	}
	if config.Ingest.StoreTimeout == 0 {
		config.Ingest.StoreTimeout = 30 * time.Second
	}
	if config.Ingest.EmbedTimeout == 0 {
		config.Ingest.EmbedTimeout = 2 * time.Minute
	}
	if config.Ingest.PersistTimeout == 0 {
		config.Ingest.PersistTimeout = 60 * time.Second
	}
	if config.Ingest.Workers == 0 {
		config.Ingest.Workers = 4
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

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.Embedding.Provider == "" || config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.ObjectStore.Endpoint = endpoint
		if config.ObjectStore.Backend == "" {
			config.ObjectStore.Backend = "minio"
		}
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		config.ObjectStore.AccessKey = accessKey
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		config.ObjectStore.SecretKey = secretKey
	}
	if level := os.Getenv("RAGINGEST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
