package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/http/handlers"
	"github.com/jmylchreest/mediaxcode/internal/sniff"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print media metadata",
	Long:  `Run ffprobe on a file and print its metadata as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	bins, err := resolveBinaries(cmd.Context(), logger, cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.Gifsicle.Path)
	if err != nil {
		return err
	}
	factory, err := engine.NewFactory(cfg, engine.WithBinaries(bins), engine.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating engine factory: %w", err)
	}

	md, err := factory.Prober().ProbeFile(cmd.Context(), path)
	if err != nil {
		return err
	}

	ext := filepath.Ext(path)
	out := handlers.ProbeResponse{
		MIME:            factory.Sniffer().MIME(src),
		Animated:        sniff.IsAnimated(src, ext),
		Width:           md.Width,
		Height:          md.Height,
		DurationSeconds: md.Duration.Seconds(),
		FPS:             md.FPS,
		Metadata:        md.Raw,
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
