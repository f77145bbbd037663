// Package sniff detects media types from leading bytes.
package sniff

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jmylchreest/mediaxcode/internal/webpanim"
)

// Matcher returns a MIME type for buf, or "" when it does not recognise it.
type Matcher func(buf []byte) string

// Sniffer tries matchers in order and returns the first answer.
type Sniffer struct {
	matchers []Matcher
}

// New builds a sniffer from an ordered matcher list.
func New(matchers ...Matcher) *Sniffer {
	return &Sniffer{matchers: append([]Matcher(nil), matchers...)}
}

// Default returns the standard matcher chain: library detection, then the
// MP4 and QuickTime ftyp matchers for files it does not know.
func Default() *Sniffer {
	return New(Library, MP4, QuickTime)
}

// MIME returns the detected type, or "" when nothing matched.
func (s *Sniffer) MIME(buf []byte) string {
	for _, m := range s.matchers {
		if mime := m(buf); mime != "" {
			return mime
		}
	}
	return ""
}

// Library uses gabriel-vasile/mimetype. The generic binary fallback and MIME
// parameters are dropped.
func Library(buf []byte) string {
	mime := mimetype.Detect(buf)
	if mime.Is("application/octet-stream") {
		return ""
	}
	base, _, _ := strings.Cut(mime.String(), ";")
	return strings.TrimSpace(base)
}

var mp4Brands = map[string]bool{"isom": true, "avc1": true, "iso2": true, "mp41": true, "mp42": true}

// MP4 recognises an ISO BMFF ftyp box carrying a common MP4 brand.
func MP4(buf []byte) string {
	if IsMP4(buf) {
		return "video/mp4"
	}
	return ""
}

// IsMP4 reports whether buf starts with an ftyp box of 20 to 256 bytes (a
// multiple of 4) whose major or compatible brands include isom, avc1, iso2,
// mp41 or mp42.
func IsMP4(buf []byte) bool {
	if len(buf) < 12 || string(buf[4:8]) != "ftyp" {
		return false
	}
	boxLen := int(binary.BigEndian.Uint32(buf[:4]))
	if boxLen < 20 || boxLen > 256 || boxLen%4 != 0 || boxLen > len(buf) {
		return false
	}
	if mp4Brands[string(buf[8:12])] {
		return true
	}
	for i := 16; i+4 <= boxLen; i += 4 {
		if mp4Brands[string(buf[i:i+4])] {
			return true
		}
	}
	return false
}

// QuickTime recognises the "qt  " ftyp brand.
func QuickTime(buf []byte) string {
	if len(buf) >= 12 && bytes.Equal(buf[4:12], []byte("ftypqt  ")) {
		return "video/quicktime"
	}
	return ""
}

// IsAnimatedGIF reports whether buf is a GIF with at least two image
// descriptors. It walks blocks without decoding pixel data.
func IsAnimatedGIF(buf []byte) bool {
	if len(buf) < 13 || (string(buf[:6]) != "GIF87a" && string(buf[:6]) != "GIF89a") {
		return false
	}

	skipColorTable := func(i int, flags byte) int {
		if flags&0x80 != 0 {
			i += 3 << ((flags & 7) + 1)
		}
		return i
	}

	i := skipColorTable(13, buf[10])
	frames := 0
	for frames < 2 {
		if i >= len(buf) {
			return false
		}
		block := buf[i]
		i++
		switch block {
		case 0x3B: // trailer
			return frames > 1
		case 0x21: // extension: label byte then sub-blocks
			i++
		case 0x2C: // image descriptor
			frames++
			i += 8
			if i >= len(buf) {
				return false
			}
			i = skipColorTable(i+1, buf[i])
			i++ // LZW minimum code size
		default:
			return false
		}
		// Sub-blocks end with a zero-length block.
		for {
			if i >= len(buf) {
				return frames > 1
			}
			n := int(buf[i])
			i++
			if n == 0 {
				break
			}
			i += n
		}
	}
	return frames > 1
}

// IsAnimatedWebP reports whether buf is an animated WebP with more than one
// frame. Canvas size is not limited here since nothing is decoded.
func IsAnimatedWebP(buf []byte) bool {
	anim, err := webpanim.ParseLimit(buf, 0)
	if err != nil {
		return false
	}
	return anim.IsAnimated()
}

// IsAnimated dispatches on the extension: ".gif" and ".webp" are inspected,
// anything else is not animated.
func IsAnimated(buf []byte, ext string) bool {
	switch strings.ToLower(ext) {
	case ".gif":
		return IsAnimatedGIF(buf)
	case ".webp":
		return IsAnimatedWebP(buf)
	default:
		return false
	}
}
