package transcode

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/jmylchreest/mediaxcode/internal/ffmpeg"
	"github.com/jmylchreest/mediaxcode/internal/storage"
	"github.com/jmylchreest/mediaxcode/internal/webpanim"
)

// concatFlags make ffmpeg read a concatenation manifest.
var concatFlags = []string{"-f", "concat", "-safe", "0"}

// source is an ffmpeg input staged on disk.
type source struct {
	path string
	// inputFlags precede "-i path".
	inputFlags []string
	// concat is set when path is an ffconcat manifest.
	concat bool
	// frameRate is "1/<secs>" when every manifest frame shares one duration.
	frameRate string
	cleanup   func()
}

// stageFile writes buf under scratch as a plain input file.
func stageFile(scratch *storage.Scratch, buf []byte, ext string) (*source, error) {
	path, cleanup, err := scratch.File(buf, ext)
	if err != nil {
		return nil, err
	}
	return &source{path: path, cleanup: cleanup}, nil
}

// stageWebP reassembles a WebP animation as lossless TIFF frames joined by an
// ffconcat manifest, which ffmpeg can read where it cannot demux the WebP.
func stageWebP(scratch *storage.Scratch, anim *webpanim.Animation) (*source, error) {
	dir, removeDir, err := scratch.Dir("-frames")
	if err != nil {
		return nil, err
	}

	var manifest strings.Builder
	manifest.WriteString("ffconcat version 1.0\n")
	fmt.Fprintf(&manifest, "# %dx%d\n", anim.Width, anim.Height)

	digits := len(strconv.Itoa(len(anim.Frames)))
	durations := make(map[string]struct{})

	err = anim.Decode(func(i int, canvas *image.NRGBA, frame webpanim.Frame) error {
		path := filepath.Join(dir, fmt.Sprintf("%0*d.tif", digits, i))
		if err := writeTIFF(path, canvas); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}
		secs := ffmpeg.FormatSeconds(frame.Duration)
		durations[secs] = struct{}{}
		fmt.Fprintf(&manifest, "file '%s'\nduration %s\n", path, secs)
		return nil
	})
	if err != nil {
		removeDir()
		return nil, err
	}

	path, removeManifest, err := scratch.File([]byte(manifest.String()), ".txt")
	if err != nil {
		removeDir()
		return nil, err
	}

	src := &source{
		path:       path,
		inputFlags: append([]string(nil), concatFlags...),
		concat:     true,
		cleanup: func() {
			removeManifest()
			removeDir()
		},
	}
	if len(durations) == 1 {
		for secs := range durations {
			src.frameRate = "1/" + secs
		}
		src.inputFlags = append(src.inputFlags, "-r", src.frameRate)
	}
	return src, nil
}

func writeTIFF(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
