package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/config"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

type commandContext struct {
	configFlag *string
	debugFlag  *bool

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

func (c *commandContext) ensure() (*config.Config, *zap.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.NewLogger(cfg.Debug || *c.debugFlag)
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.logger, c.err
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var debugFlag bool
	ctx := &commandContext{configFlag: &configFlag, debugFlag: &debugFlag}

	rootCmd := &cobra.Command{
		Use:           "podprep",
		Short:         "Podcast research bundle ingestion and brief generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.ensure()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newBriefCommand(ctx))
	rootCmd.AddCommand(newSinkCommand(ctx))
	rootCmd.AddCommand(newReplicateCommand(ctx))

	return rootCmd
}
