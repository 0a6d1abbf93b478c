package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/bus"
	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/replication"
	"github.com/thefalc/podcast-research-agent/pkg/server"
	"github.com/thefalc/podcast-research-agent/pkg/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion and brief triggers over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			comps, err := buildComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			queue, err := worker.NewQueue(worker.Config{
				Ingestor:    comps.ingestor,
				Synthesizer: comps.synthesizer,
				PoolSize:    cfg.Worker.PoolSize,
				MaxQueued:   cfg.Worker.MaxQueued,
				JobTimeout:  cfg.Worker.JobTimeout,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			srv := server.NewServer(queue, cfg.Server, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err = <-errCh:
				if err != nil {
					logger.Error("server failed", zap.Error(err))
				}
			case <-runCtx.Done():
				logger.Info("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("server shutdown", zap.Error(stopErr))
			}
			if qErr := queue.Shutdown(shutdownCtx); qErr != nil {
				logger.Warn("queue shutdown", zap.Error(qErr))
			}
			return err
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var bundleID string
	cmd := &cobra.Command{
		Use:   "ingest --bundle ID [url...]",
		Short: "Ingest a bundle's URLs now and print a per-URL report",
		Long: "Ingest extracts, chunks, embeds and publishes every URL of a bundle. " +
			"When no URLs are given the bundle's stored URLs are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			comps, err := buildComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			urls := args
			if len(urls) == 0 {
				bundle, err := comps.mongo.GetBundle(runCtx, bundleID)
				if err != nil {
					return err
				}
				urls = bundle.URLs
			}

			start := time.Now()
			report, err := comps.ingestor.Ingest(runCtx, bundleID, urls)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bundle %s: %d passages from %d of %d urls in %s\n",
				bundleID, report.Published, len(report.Succeeded), len(urls), time.Since(start).Round(time.Second))
			for _, u := range report.Skipped {
				fmt.Fprintf(out, "  skipped duplicate %s\n", u)
			}
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  failed %s: %s\n", f.URL, f.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundleID, "bundle", "", "Research bundle id")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}

func newBriefCommand(ctx *commandContext) *cobra.Command {
	var bundleID string
	var noWait bool
	cmd := &cobra.Command{
		Use:   "brief --bundle ID",
		Short: "Generate the research brief for a bundle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			if noWait {
				cfg.Brief.Readiness.InitialDelay = 0
				cfg.Brief.Readiness.MaxWait = 0
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			comps, err := buildComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			res, err := comps.synthesizer.Generate(runCtx, bundleID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle %s: %s (%d passages, %s brief)\n",
				bundleID, res.Outcome, res.Passages, humanize.Bytes(uint64(len(res.Brief))))
			return nil
		},
	}
	cmd.Flags().StringVar(&bundleID, "bundle", "", "Research bundle id")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Skip waiting for ingestion to settle")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}

func newSinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sink",
		Short: "Consume chunk records from Kafka and store them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers is required")
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			mongo, err := connectMongo(runCtx, cfg)
			if err != nil {
				return err
			}
			defer mongo.Close(context.Background())

			sink, err := bus.NewKafkaSink(kafkaConfig(cfg), mongo, logger)
			if err != nil {
				return err
			}
			logger.Info("chunk sink running", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
			return sink.Run(runCtx)
		},
	}
}

func newReplicateCommand(ctx *commandContext) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Copy processed research briefs into the Postgres archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			mongo, err := connectMongo(runCtx, cfg)
			if err != nil {
				return err
			}
			defer mongo.Close(context.Background())

			pool := db.PoolConfig{MaxOpenConns: cfg.Postgres.MaxOpenConns}
			var pg db.DBProvider
			switch target {
			case "postgres":
				client := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.Postgres.DSN, Pool: pool})
				if err := client.Connect(runCtx); err != nil {
					return err
				}
				defer client.Close()
				pg = client
			case "supabase":
				client := db.NewSupabaseClient(db.SupabaseConfig{
					URL:      cfg.Supabase.URL,
					Key:      cfg.Supabase.Key,
					Password: cfg.Supabase.Password,
					Pool:     pool,
				})
				if err := client.Connect(runCtx); err != nil {
					return err
				}
				defer client.Close()
				pg = client
			default:
				return fmt.Errorf("unknown target %q (want postgres or supabase)", target)
			}

			r, err := replication.NewReplicator(replication.Config{Bundles: mongo, Postgres: pg, Logger: logger})
			if err != nil {
				return err
			}
			sum, err := r.ReplicateBriefs(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replicated %d new briefs (%d processed bundles)\n", sum.Inserted, sum.Processed)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "postgres", "Archive target: postgres or supabase")
	return cmd
}
