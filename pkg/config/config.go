// Package config loads the podprep configuration file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BusDriverDirect = "direct"
	BusDriverKafka  = "kafka"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Bus      BusConfig      `yaml:"bus"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Audio    AudioConfig    `yaml:"audio"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Brief    BriefConfig    `yaml:"brief"`
	Worker   WorkerConfig   `yaml:"worker"`
	Postgres PostgresConfig `yaml:"postgres"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// MongoConfig holds the document store settings.
type MongoConfig struct {
	URI                string `yaml:"uri"`
	Database           string `yaml:"database"`
	BundleCollection   string `yaml:"bundle_collection"`
	ChunkCollection    string `yaml:"chunk_collection"`
	QuestionCollection string `yaml:"question_collection"`
	StatusCollection   string `yaml:"status_collection"`
	VectorIndex        string `yaml:"vector_index"`
}

// BusConfig selects how chunk records travel from ingestion to storage.
type BusConfig struct {
	Driver string `yaml:"driver"`
}

// KafkaConfig holds broker and topic settings for the kafka bus driver.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	TLS          bool          `yaml:"tls"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// OpenAIConfig holds model and credential settings for the AI capabilities.
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	ChatModel          string        `yaml:"chat_model"`
	ExtractionModel    string        `yaml:"extraction_model"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	TranscriptionModel string        `yaml:"transcription_model"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	Timeout            time.Duration `yaml:"timeout"`
}

// AudioConfig holds podcast audio download and splitting settings.
type AudioConfig struct {
	ScratchDir      string        `yaml:"scratch_dir"`
	MaxChunkBytes   int64         `yaml:"max_chunk_bytes"`
	SecondsPerMB    float64       `yaml:"seconds_per_mb"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	CatalogURL      string        `yaml:"catalog_url"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// IngestConfig holds extraction and chunking settings.
type IngestConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	URLConcurrency int           `yaml:"url_concurrency"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	// URLTimeout bounds extraction, transcription and publishing of one URL.
	URLTimeout time.Duration `yaml:"url_timeout"`
}

// BriefConfig holds retrieval and synthesis settings.
type BriefConfig struct {
	TopK           int             `yaml:"top_k"`
	NumCandidates  int             `yaml:"num_candidates"`
	QueryExpansion *bool           `yaml:"query_expansion"`
	Readiness      ReadinessConfig `yaml:"readiness"`
}

// QueryExpansionOrDefault returns whether to expand the retrieval query; defaults to true when unset.
func (b *BriefConfig) QueryExpansionOrDefault() bool {
	if b.QueryExpansion != nil {
		return *b.QueryExpansion
	}
	return true
}

// ReadinessConfig controls how long synthesis waits for ingestion to settle.
type ReadinessConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	Backoff      float64       `yaml:"backoff"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// WorkerConfig sizes the background work queue.
type WorkerConfig struct {
	PoolSize   int           `yaml:"pool_size"`
	MaxQueued  int           `yaml:"max_queued"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// PostgresConfig holds the brief archive connection.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SupabaseConfig holds the Supabase archive connection.
type SupabaseConfig struct {
	URL      string `yaml:"url"`
	Key      string `yaml:"key"`
	Password string `yaml:"password"`
}

// Load reads and parses the config file at path, applies defaults and environment overrides.
// An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.Getenv)

	if path != "" {
		cfg.Audio.ScratchDir = expandPath(cfg.Audio.ScratchDir, filepath.Dir(path))
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with the defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "podpre_ai"
	}
	if cfg.Mongo.BundleCollection == "" {
		cfg.Mongo.BundleCollection = "research_bundles"
	}
	if cfg.Mongo.ChunkCollection == "" {
		cfg.Mongo.ChunkCollection = "text_embeddings"
	}
	if cfg.Mongo.QuestionCollection == "" {
		cfg.Mongo.QuestionCollection = "mined_questions"
	}
	if cfg.Mongo.StatusCollection == "" {
		cfg.Mongo.StatusCollection = "ingestion_status"
	}
	if cfg.Mongo.VectorIndex == "" {
		cfg.Mongo.VectorIndex = "vector_index"
	}

	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = BusDriverDirect
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "podprep-text-chunks-1"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "podprep-chunk-sink"
	}
	if cfg.Kafka.DialTimeout == 0 {
		cfg.Kafka.DialTimeout = 10 * time.Second
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 100 * time.Millisecond
	}

	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o"
	}
	if cfg.OpenAI.ExtractionModel == "" {
		cfg.OpenAI.ExtractionModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.TranscriptionModel == "" {
		cfg.OpenAI.TranscriptionModel = "whisper-1"
	}
	if cfg.OpenAI.RequestsPerSecond == 0 {
		cfg.OpenAI.RequestsPerSecond = 5
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 2 * time.Minute
	}

	if cfg.Audio.ScratchDir == "" {
		cfg.Audio.ScratchDir = os.TempDir()
	}
	if cfg.Audio.MaxChunkBytes == 0 {
		cfg.Audio.MaxChunkBytes = 25 * 1024 * 1024
	}
	if cfg.Audio.SecondsPerMB == 0 {
		cfg.Audio.SecondsPerMB = 24
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.CatalogURL == "" {
		cfg.Audio.CatalogURL = "https://itunes.apple.com/lookup"
	}
	if cfg.Audio.DownloadTimeout == 0 {
		cfg.Audio.DownloadTimeout = 10 * time.Minute
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Ingest.URLConcurrency == 0 {
		cfg.Ingest.URLConcurrency = 1
	}
	if cfg.Ingest.FetchTimeout == 0 {
		cfg.Ingest.FetchTimeout = 30 * time.Second
	}
	if cfg.Ingest.URLTimeout == 0 {
		cfg.Ingest.URLTimeout = 20 * time.Minute
	}

	if cfg.Brief.TopK == 0 {
		cfg.Brief.TopK = 15
	}
	if cfg.Brief.NumCandidates == 0 {
		cfg.Brief.NumCandidates = 150
	}
	r := &cfg.Brief.Readiness
	if r.InitialDelay == 0 {
		r.InitialDelay = 30 * time.Second
	}
	if r.PollInterval == 0 {
		r.PollInterval = 10 * time.Second
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = time.Minute
	}
	if r.Backoff == 0 {
		r.Backoff = 2
	}
	if r.MaxWait == 0 {
		r.MaxWait = 5 * time.Minute
	}

	if cfg.Worker.PoolSize == 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.MaxQueued == 0 {
		cfg.Worker.MaxQueued = 64
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 30 * time.Minute
	}
}

// ApplyEnv overrides secrets and endpoints from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Mongo.URI, "MONGODB_URI")
	set(&cfg.Kafka.Username, "KAFKA_USERNAME")
	set(&cfg.Kafka.Password, "KAFKA_PASSWORD")
	set(&cfg.Postgres.DSN, "POSTGRES_DSN")
	set(&cfg.Supabase.URL, "SUPABASE_URL")
	set(&cfg.Supabase.Key, "SUPABASE_KEY")
	set(&cfg.Supabase.Password, "SUPABASE_PASSWORD")
	if v := strings.TrimSpace(getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
}

// Validate reports settings the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required"))
	}
	switch c.Bus.Driver {
	case BusDriverDirect:
	case BusDriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required for the kafka bus driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus driver %q", c.Bus.Driver))
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandPath resolves "./" paths against the config file directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}
