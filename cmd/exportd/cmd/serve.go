package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/freecut/exportd/internal/export"
	"github.com/freecut/exportd/internal/ffmpeg"
	internalhttp "github.com/freecut/exportd/internal/http"
	"github.com/freecut/exportd/internal/http/handlers"
	"github.com/freecut/exportd/internal/observability"
	"github.com/freecut/exportd/internal/startup"
	"github.com/freecut/exportd/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exportd server",
	Long: `Start the exportd HTTP server and API.

The server provides:
- REST API for creating export jobs and streaming frames
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("data-dir", "", "Base directory for export artifacts")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	// Jobs live only in memory, so temp directories surviving a restart
	// are orphans.
	if removed, err := startup.CleanupOrphanedExportDirs(logger, cfg.Storage.TempPath(), cfg.Export.JobRetention); err != nil {
		logger.Warn("failed to clean orphaned export directories",
			slog.String("error", err.Error()),
		)
	} else if removed > 0 {
		logger.Info("cleaned orphaned export directories on startup",
			slog.Int("removed", removed),
		)
	}

	// Verify the ffmpeg installation up front so a missing binary fails
	// loudly at startup rather than on the first job.
	detector := ffmpeg.NewDetector(cfg.FFmpeg)
	detectCtx, cancelDetect := context.WithTimeout(context.Background(), 30*time.Second)
	info, err := detector.Detect(detectCtx)
	cancelDetect()
	if err != nil {
		logger.Warn("ffmpeg not available; export jobs will fail until it is installed",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("ffmpeg detected",
			slog.String("path", info.FFmpegPath),
			slog.String("version", info.Version),
			slog.String("encoder", info.HWAccel.Encoder),
			slog.Bool("hwaccel", info.HWAccel.Available),
		)
	}

	launcher := ffmpeg.NewLauncher(detector, logger)
	starter := export.StarterFunc(func(ctx context.Context, spec ffmpeg.EncodeSpec, videoOnlyPath string) (export.Pipeline, error) {
		return launcher.Start(ctx, spec, videoOnlyPath)
	})
	muxer := ffmpeg.NewMuxer(detector, logger)

	manager := export.NewManager(cfg.Export, cfg.Storage.TempPath(), starter, muxer, logger)
	defer manager.Close()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	exportHandler := handlers.NewExportHandler(manager, cfg.Export.MaxFrameBytes.Int64(), cfg.Export.MaxAudioBytes.Int64())
	exportHandler.Register(server.API())
	exportHandler.RegisterChiRoutes(server.Router())

	healthHandler := handlers.NewHealthHandler(version.Version)
	healthHandler.Register(server.API())

	systemHandler := handlers.NewSystemHandler(detector, ffmpeg.NewProber(detector), ffmpeg.NewThumbnailer(detector))
	systemHandler.Register(server.API())

	// Periodic reap of expired terminal jobs, in addition to the
	// sweep-on-create inside the manager.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Export.ReapSchedule, func() {
		manager.Reap()
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting exportd server",
		slog.String("address", cfg.Server.Address()),
		slog.String("data_dir", cfg.Storage.TempPath()),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
