package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/ai/openai"
	"github.com/thefalc/podcast-research-agent/pkg/audio"
	"github.com/thefalc/podcast-research-agent/pkg/brief"
	"github.com/thefalc/podcast-research-agent/pkg/bus"
	"github.com/thefalc/podcast-research-agent/pkg/chunking"
	"github.com/thefalc/podcast-research-agent/pkg/config"
	"github.com/thefalc/podcast-research-agent/pkg/content"
	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/httpclient"
	"github.com/thefalc/podcast-research-agent/pkg/pipeline"
	"github.com/thefalc/podcast-research-agent/pkg/podcast"
	"github.com/thefalc/podcast-research-agent/pkg/transcribe"
)

// components holds the long-lived clients and pipeline stages of one process.
type components struct {
	mongo       *db.Client
	ingestor    *pipeline.Ingestor
	synthesizer *brief.Synthesizer
	closers     []func() error
	logger      *zap.Logger
}

func connectMongo(ctx context.Context, cfg *config.Config) (*db.Client, error) {
	client, err := db.NewClient(ctx, db.MongoConfig{
		URI:                cfg.Mongo.URI,
		Database:           cfg.Mongo.Database,
		BundleCollection:   cfg.Mongo.BundleCollection,
		ChunkCollection:    cfg.Mongo.ChunkCollection,
		QuestionCollection: cfg.Mongo.QuestionCollection,
		StatusCollection:   cfg.Mongo.StatusCollection,
		VectorIndex:        cfg.Mongo.VectorIndex,
		NumCandidates:      cfg.Brief.NumCandidates,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return client, nil
}

func kafkaConfig(cfg *config.Config) bus.KafkaConfig {
	return bus.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		GroupID:      cfg.Kafka.GroupID,
		Username:     cfg.Kafka.Username,
		Password:     cfg.Kafka.Password,
		TLS:          cfg.Kafka.TLS,
		DialTimeout:  cfg.Kafka.DialTimeout,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	}
}

// buildComponents wires every stage of ingestion and brief synthesis.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mongo, err := connectMongo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &components{
		mongo:  mongo,
		logger: logger,
		closers: []func() error{func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return mongo.Close(closeCtx)
		}},
	}

	if err := c.wire(cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) wire(cfg *config.Config, logger *zap.Logger) error {
	apiHTTP := httpclient.NewClient(httpclient.APIClient, httpclient.WithTimeout(cfg.OpenAI.Timeout))
	provider, err := openai.NewProvider(openai.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		ChatModel:         cfg.OpenAI.ChatModel,
		ExtractionModel:   cfg.OpenAI.ExtractionModel,
		EmbeddingModel:    cfg.OpenAI.EmbeddingModel,
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		HTTPClient:        apiHTTP.HTTP(),
	}, logger)
	if err != nil {
		return err
	}

	whisper, err := transcribe.NewWhisper(transcribe.WhisperConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.TranscriptionModel,
		HTTPClient: apiHTTP.HTTP(),
		Limiter:    provider.Limiter(),
	})
	if err != nil {
		return err
	}

	web := httpclient.NewClient(httpclient.CloudflareClient, httpclient.WithTimeout(cfg.Ingest.FetchTimeout))
	catalog := httpclient.NewClient(httpclient.APIClient, httpclient.WithTimeout(cfg.Ingest.FetchTimeout))
	downloads := httpclient.NewClient(httpclient.BrowserClient, httpclient.WithTimeout(cfg.Audio.DownloadTimeout))

	podcasts := &content.PodcastTranscriber{
		Resolver: podcast.NewResolver(cfg.Audio.CatalogURL, catalog, web, logger),
		Splitter: audio.NewSplitter(downloads,
			audio.WithScratchDir(cfg.Audio.ScratchDir),
			audio.WithMaxChunkBytes(cfg.Audio.MaxChunkBytes),
			audio.WithSecondsPerMB(cfg.Audio.SecondsPerMB),
			audio.WithFFmpeg(cfg.Audio.FFmpegPath),
			audio.WithLogger(logger),
		),
		Transcriber: transcribe.NewAggregator(whisper, logger),
	}

	extractor, err := content.NewExtractor(content.Config{
		Fetcher:   web,
		Completer: provider.Extraction(),
		Podcasts:  podcasts,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	chunker, err := chunking.New(provider.Embedder(),
		chunking.WithChunkSize(cfg.Ingest.ChunkSize),
		chunking.WithChunkOverlap(cfg.Ingest.ChunkOverlap),
	)
	if err != nil {
		return err
	}

	var publisher bus.Publisher = bus.NewStorePublisher(c.mongo)
	if cfg.Bus.Driver == config.BusDriverKafka {
		kp, err := bus.NewKafkaPublisher(kafkaConfig(cfg), logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, kp.Close)
		publisher = kp
	}

	c.ingestor, err = pipeline.NewIngestor(pipeline.Config{
		Extractor:   extractor,
		Chunker:     chunker,
		Publisher:   publisher,
		Status:      c.mongo,
		Concurrency: cfg.Ingest.URLConcurrency,
		URLTimeout:  cfg.Ingest.URLTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	r := cfg.Brief.Readiness
	readiness := brief.NewReadiness(c.mongo, c.mongo, brief.ReadinessPolicy{
		InitialDelay: r.InitialDelay,
		PollInterval: r.PollInterval,
		MaxInterval:  r.MaxInterval,
		Backoff:      r.Backoff,
		MaxWait:      r.MaxWait,
	}, logger)

	c.synthesizer, err = brief.NewSynthesizer(brief.Config{
		Bundles:     c.mongo,
		Chunks:      c.mongo,
		Questions:   c.mongo,
		Embedder:    provider.Embedder(),
		Completer:   provider.Chat(),
		Readiness:   readiness,
		TopK:        cfg.Brief.TopK,
		ExpandQuery: cfg.Brief.QueryExpansionOrDefault(),
		Logger:      logger,
	})
	return err
}

// Close releases clients in reverse order of creation.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("close component", zap.Error(err))
		}
	}
}
