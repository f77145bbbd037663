// Package engine routes each request to the backend that can handle its
// source: the image engine, the ffmpeg transcoder or the gifsicle engine.
package engine

import (
	"strings"

	"github.com/jmylchreest/mediaxcode/internal/config"
	"github.com/jmylchreest/mediaxcode/internal/request"
)

// Kind identifies a backend.
type Kind string

// Backends.
const (
	KindImage      Kind = "image"
	KindTranscoder Kind = "ffmpeg"
	KindGIF        Kind = "gifsicle"
)

// Selection is the outcome of backend selection.
type Selection struct {
	Kind Kind
	// AutoFormat is the output format negotiated for an animated GIF, or ""
	// when none applies.
	AutoFormat string
	// Negotiable is set when the output depends on the Accept header.
	Negotiable bool
}

// Select picks the backend for a source. The first matching rule wins:
//
//  1. animated WebP goes to the transcoder;
//  2. animated GIF goes to the transcoder when handle_animated_gif is on;
//  3. GIF goes to gifsicle when use_gifsicle_engine is on;
//  4. video/* goes to the transcoder;
//  5. everything else goes to the image engine.
func Select(cfg config.FFmpegConfig, ext, mime string, animated bool, req *request.Params) Selection {
	ext = strings.ToLower(ext)
	isGIF := ext == ".gif"

	switch {
	case ext == ".webp" && animated:
		return Selection{Kind: KindTranscoder}
	case isGIF && cfg.HandleAnimatedGIF && animated:
		return Selection{
			Kind:       KindTranscoder,
			AutoFormat: autoFormat(cfg, req),
			Negotiable: cfg.GIFAutoWebP || cfg.GIFAutoH264 || cfg.GIFAutoH265,
		}
	case isGIF && cfg.UseGifsicleEngine:
		return Selection{Kind: KindGIF}
	case strings.HasPrefix(mime, "video/"):
		return Selection{Kind: KindTranscoder}
	default:
		return Selection{Kind: KindImage}
	}
}

// autoFormat upgrades an animated GIF to a format the client accepts.
// HEVC is preferred over H.264, and both over WebP.
func autoFormat(cfg config.FFmpegConfig, req *request.Params) string {
	if req == nil || req.Format != "" {
		return ""
	}
	switch {
	case req.AcceptsVideo && cfg.GIFAutoH265:
		return "h265"
	case req.AcceptsVideo && cfg.GIFAutoH264:
		return "h264"
	case req.AcceptsWebP && cfg.GIFAutoWebP:
		return "webp"
	}
	return ""
}
