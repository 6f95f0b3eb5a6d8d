package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tournevent/cdek/internal/server"
	"github.com/tournevent/cdek/internal/telemetry"
	"github.com/tournevent/cdek/pkg/cdek"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cdek",
	Short:   "CDEK bridge - webhook receiver and API client for CDEK delivery",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook receiver",
	RunE:  runServe,
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Look up regions in the CDEK location directory",
	RunE:  runRegions,
}

func init() {
	regionsCmd.Flags().StringSlice("country", nil, "ISO 3166-1 alpha-2 country codes")
	regionsCmd.Flags().Int("size", 0, "page size (0 for the API default)")
	regionsCmd.Flags().Int("page", 0, "page number")
	regionsCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(regionsCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg, "stdout")
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.WithoutCancel(ctx))
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	store, closeStore := initTokenStore(ctx, cfg, logger)
	defer closeStore()

	client, err := initClient(cfg, store, logger, tracer, metrics)
	if err != nil {
		return err
	}

	closeForwarder, err := initForwarder(cfg, client.Router(), logger)
	if err != nil {
		return err
	}
	defer closeForwarder()

	for _, t := range cdek.EventTypes {
		client.On(t, logEvent(logger))
	}

	logger.Info("Starting CDEK bridge",
		zap.Int("port", cfg.Port),
		zap.String("base_url", client.BaseURL()),
		zap.String("version", cfg.Version),
	)

	srv := server.New(server.Config{
		Port:        cfg.Port,
		WebhookPath: cfg.WebhookPath,
	}, client.WebhookHandler(), prometheus.DefaultGatherer, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		warmToken(gctx, client, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runRegions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync()

	countries, _ := cmd.Flags().GetStringSlice("country")
	size, _ := cmd.Flags().GetInt("size")
	page, _ := cmd.Flags().GetInt("page")
	output, _ := cmd.Flags().GetString("output")

	client, err := initClient(cfg, nil, logger, nil, nil)
	if err != nil {
		return err
	}

	regions, err := client.GetRegions(ctx, &cdek.RegionsQuery{
		CountryCodes: countries,
		Size:         size,
		Page:         page,
	})
	if err != nil {
		return fmt.Errorf("listing regions: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), output, regions)
}
