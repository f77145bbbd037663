package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/mediaxcode/internal/engine"
	"github.com/jmylchreest/mediaxcode/internal/request"
	"github.com/jmylchreest/mediaxcode/internal/transform"
	"github.com/jmylchreest/mediaxcode/pkg/format"
)

var transcodeCmd = &cobra.Command{
	Use:   "transcode <input> -o <output>",
	Short: "Transcode a single file",
	Long: `Transcode one media file using the same backends as the server.

The output format follows the output file extension unless --format is
given. Operations are applied in a fixed order: crop, resize, flips,
rotate, grayscale.

Examples:
  mediaxcode transcode clip.gif -o clip.mp4
  mediaxcode transcode clip.mp4 -o thumb.jpg --still 00:00:01.5 --resize 320x180
  mediaxcode transcode anim.webp -o anim.webm --lossless`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscode,
}

func init() {
	rootCmd.AddCommand(transcodeCmd)
	addTranscodeFlags(transcodeCmd.Flags())
	_ = transcodeCmd.MarkFlagRequired("output")
}

func addTranscodeFlags(f *pflag.FlagSet) {
	f.StringP("output", "o", "", "Output file (required)")
	f.String("format", "", "Output format: "+fmt.Sprint(request.AllowedFormats))
	f.String("resize", "", "Output size as WxH")
	f.String("crop", "", "Crop box as left,top,right,bottom")
	f.Int("rotate", 0, "Clockwise rotation in degrees (90, 180, 270)")
	f.Bool("flip-h", false, "Mirror horizontally")
	f.Bool("flip-v", false, "Mirror vertically")
	f.Bool("grayscale", false, "Convert to grayscale")
	f.String("still", "", "Extract a single frame at [HH:]MM:SS[.frac] or seconds")
	f.Bool("lossless", false, "Force lossless encoding where the codec supports it")
	f.String("tune", "", "Encoder tune for H.264/H.265")
	f.Int("quality", 0, "Encoder quality 1-100 (default: image.default_quality)")
}

// requestFromFlags builds per-request parameters from the transcode flags.
func requestFromFlags(cmd *cobra.Command, input string) (*request.Params, error) {
	f := cmd.Flags()
	req := &request.Params{URL: input}

	if f.Changed("format") {
		value, _ := f.GetString("format")
		if !req.SetFormat(value) {
			return nil, fmt.Errorf("invalid format %q: must be one of %v", value, request.AllowedFormats)
		}
	}
	if f.Changed("lossless") {
		lossless, _ := f.GetBool("lossless")
		req.Lossless = &lossless
	}
	req.Tune, _ = f.GetString("tune")

	if f.Changed("still") {
		pos, _ := f.GetString("still")
		if pos == "" {
			pos = "0"
		}
		if !request.ValidStillPosition(pos) {
			return nil, fmt.Errorf("invalid still position %q", pos)
		}
		req.StillPosition = pos
	}
	return req, nil
}

func planFromFlags(cmd *cobra.Command) (transform.Plan, error) {
	f := cmd.Flags()
	resize, _ := f.GetString("resize")
	crop, _ := f.GetString("crop")
	rotate, _ := f.GetInt("rotate")
	flipH, _ := f.GetBool("flip-h")
	flipV, _ := f.GetBool("flip-v")
	gray, _ := f.GetBool("grayscale")
	return transform.ParsePlan(resize, crop, rotate, flipH, flipV, gray)
}

func runTranscode(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	input := args[0]
	output, _ := cmd.Flags().GetString("output")

	req, err := requestFromFlags(cmd, input)
	if err != nil {
		return err
	}
	plan, err := planFromFlags(cmd)
	if err != nil {
		return err
	}

	quality, _ := cmd.Flags().GetInt("quality")
	if quality == 0 {
		quality = cfg.Image.DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return fmt.Errorf("invalid quality %d: must be between 1 and 100", quality)
	}

	src, err := os.ReadFile(input)
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

	res, err := factory.Process(cmd.Context(), engine.Job{
		Source:    src,
		Ext:       filepath.Ext(input),
		OutputExt: filepath.Ext(output),
		Plan:      plan,
		Quality:   &quality,
		Request:   req,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, res.Data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	logger.Info("transcoded",
		slog.String("input", input),
		slog.String("output", output),
		slog.String("backend", string(res.Kind)),
		slog.String("mime", res.MIME),
		slog.String("size", format.Dimensions(res.Size.Width, res.Size.Height)),
		slog.String("bytes", format.Bytes(int64(len(res.Data)))),
	)
	return nil
}
