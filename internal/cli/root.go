// Package cli implements tablebookctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/logging"
	"tablebook/internal/repository"
	"tablebook/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

type options struct {
	configPath string
}

func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tablebookctl",
		Short:         "Operate the table booking store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to the YAML config")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newViewCmd(opts))
	root.AddCommand(newItineraryCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newPurgeCmd(opts))
	root.AddCommand(newCalendarLogCmd(opts))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tablebookctl %s (%s)\n", Version, CommitSHA)
		},
	}
}

// env is what a store-backed command needs.
type env struct {
	cfg     *config.Config
	svc     *service.BookingService
	sqlite  *database.DB
	logger  *zerolog.Logger
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openEnv(ctx context.Context, opts *options) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	// commands write results to stdout, logs go to stderr
	logCfg := cfg.Logging
	if !strings.EqualFold(logCfg.Output, "file") {
		logCfg.Output = "stderr"
	}
	logger, closer, err := logging.New(logCfg, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg, logger: logging.Component(logger, "cli")}
	if closer != nil {
		e.closers = append(e.closers, closer.Close)
	}

	var redisClient *redis.Client
	if cfg.Storage.Driver == config.DriverRedis {
		redisClient = repository.NewRedisClient(cfg.Redis)
		e.closers = append(e.closers, redisClient.Close)
	}

	stores, err := repository.OpenStores(ctx, cfg, redisClient, e.logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, stores.Close)
	e.sqlite = stores.SQLite

	e.svc = service.NewBookingService(stores.Slots, nil, nil, service.RetryPolicy{
		MaxRetries:   cfg.Booking.MaxCommitRetries,
		InitialDelay: cfg.Booking.RetryBaseDelay,
		MaxDelay:     cfg.Booking.RetryMaxDelay,
	}, e.logger)
	return e, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
