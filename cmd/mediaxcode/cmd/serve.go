package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/mediaxcode/internal/http"
	"github.com/jmylchreest/mediaxcode/internal/http/handlers"
	"github.com/jmylchreest/mediaxcode/internal/scheduler"
	"github.com/jmylchreest/mediaxcode/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediaxcode server",
	Long: `Start the mediaxcode HTTP server and API.

The server provides:
- POST /api/v1/transcode to transcode an uploaded source
- POST /api/v1/probe to read source metadata
- GET /health with tool, janitor and host metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("temp-dir", "", "Scratch directory for external tools (default: OS temp dir)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("storage.temp_dir", serveCmd.Flags().Lookup("temp-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bins, err := resolveBinaries(cmd.Context(), logger, cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.Gifsicle.Path)
	if err != nil {
		return err
	}

	factory, err := engine.NewFactory(cfg,
		engine.WithBinaries(bins),
		engine.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating engine factory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	janitor := scheduler.NewJanitor(
		factory.Scratch().Root(),
		cfg.Storage.OrphanMaxAge.Duration(),
		cfg.Storage.CleanupSchedule,
	).WithLogger(logger.With(slog.String("component", "janitor")))
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer janitor.Stop()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithBinaries(bins).
		WithJanitor(janitor).
		Register(server.API())
	handlers.NewTranscodeHandler(factory, cfg.Server.MaxBodySize.Bytes()).Register(server.API())
	handlers.NewProbeHandler(factory, cfg.Server.MaxBodySize.Bytes()).Register(server.API())

	logger.Info("starting mediaxcode server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.String("scratch", factory.Scratch().Root()),
	)

	return server.ListenAndServe(ctx)
}

// resolveBinaries locates the external tools. Only ffmpeg is mandatory;
// missing encoders are reported but do not stop startup.
func resolveBinaries(ctx context.Context, logger *slog.Logger, ffmpegPath, ffprobePath, gifsiclePath string) (ffmpeg.Binaries, error) {
	bins, err := ffmpeg.ResolveBinaries(ffmpegPath, ffprobePath, gifsiclePath)
	if err != nil {
		if bins.FFmpeg == "" {
			return bins, err
		}
		logger.Warn("optional tools unavailable", slog.String("error", err.Error()))
	}

	info, err := ffmpeg.NewBinaryDetector(ffmpeg.NewExecRunner(logger)).Detect(ctx, bins.FFmpeg)
	if err != nil {
		logger.Warn("could not inspect ffmpeg", slog.String("path", bins.FFmpeg), slog.String("error", err.Error()))
		return bins, nil
	}

	attrs := []any{
		slog.String("path", info.FFmpegPath),
		slog.String("version", info.Version),
	}
	if missing := info.MissingEncoders(); len(missing) > 0 {
		logger.Warn("ffmpeg is missing encoders", append(attrs, slog.String("encoders", strings.Join(missing, ",")))...)
	} else {
		logger.Info("ffmpeg detected", attrs...)
	}
	return bins, nil
}
