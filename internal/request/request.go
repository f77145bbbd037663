// Package request holds the per-request parameters that steer transcoding:
// the output format override, encoder hints and content negotiation.
package request

import (
	"regexp"
	"strconv"
	"strings"
)

// AllowedFormats lists the values accepted by the format() filter.
var AllowedFormats = []string{"png", "jpeg", "jpg", "gif", "webp", "webm", "mp4", "hevc", "h264", "h265", "vp9"}

// Params is the mutable request context shared by the engines of one request.
type Params struct {
	// URL identifies the source in error messages.
	URL string
	// Format overrides the output format. Empty means derive from extension.
	Format string
	// FormatFromFilter is set when Format came from an explicit format() filter.
	FormatFromFilter bool
	// Lossless overrides the per-codec lossless setting when non-nil.
	Lossless *bool
	// Tune overrides the h264/h265 tune setting when non-empty.
	Tune string
	// StillPosition requests a single frame at the given position.
	StillPosition string

	AcceptsVideo bool
	AcceptsWebP  bool
	// ShouldVary is set when the response depends on the Accept header.
	ShouldVary bool
}

// ApplyAccept records which output families the client accepts.
func (p *Params) ApplyAccept(accept string) {
	p.AcceptsVideo = strings.Contains(accept, "video/")
	p.AcceptsWebP = strings.Contains(accept, "image/webp")
}

// Vary reports whether a "Vary: Accept" header must be sent. An explicit
// format() filter fixes the output, so the response does not vary.
func (p *Params) Vary() bool {
	return p.ShouldVary && !(p.FormatFromFilter && p.Format != "")
}

// SetFormat validates and applies a format() filter value. Values outside
// AllowedFormats clear the override. It reports whether the value was accepted.
func (p *Params) SetFormat(format string) bool {
	format = strings.ToLower(strings.TrimSpace(format))
	for _, allowed := range AllowedFormats {
		if format == allowed {
			p.Format = format
			p.FormatFromFilter = true
			return true
		}
	}
	p.Format = ""
	p.FormatFromFilter = false
	return false
}

var stillPattern = regexp.MustCompile(`^\-?(?:(?:\d\d:)?\d\d:\d\d(?:\.\d+?)?|\d+(?:\.\d+?)?)$`)

// ValidStillPosition reports whether pos is "[-][HH:]MM:SS[.frac]" or
// "[-]seconds[.frac]".
func ValidStillPosition(pos string) bool {
	return stillPattern.MatchString(pos)
}

// Filter is one parsed name(args) term.
type Filter struct {
	Name string
	Args string
}

// SplitFilters splits "a(x):b():c" into terms. Colons inside parentheses
// belong to the arguments.
func SplitFilters(s string) []Filter {
	var (
		out   []Filter
		depth int
		start int
	)
	flush := func(end int) {
		term := strings.TrimSpace(s[start:end])
		if term == "" {
			return
		}
		name, args, _ := strings.Cut(term, "(")
		out = append(out, Filter{Name: strings.TrimSpace(name), Args: strings.TrimSuffix(args, ")")})
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	return out
}

// ApplyFilters applies the recognised filters (format, lossless, tune, still)
// from a thumbor-style filter string and returns the names it ignored.
// Invalid still positions are ignored; an invalid format clears the override.
func (p *Params) ApplyFilters(filters string) []string {
	var ignored []string
	for _, f := range SplitFilters(filters) {
		switch strings.ToLower(f.Name) {
		case "format":
			p.SetFormat(f.Args)
		case "lossless":
			enabled := true
			if arg := strings.TrimSpace(f.Args); arg != "" {
				v, err := strconv.ParseBool(arg)
				if err != nil {
					ignored = append(ignored, f.Name)
					continue
				}
				enabled = v
			}
			p.Lossless = &enabled
		case "tune":
			p.Tune = strings.TrimSpace(f.Args)
		case "still":
			pos := strings.TrimSpace(f.Args)
			if pos == "" {
				pos = "0"
			}
			if !ValidStillPosition(pos) {
				ignored = append(ignored, f.Name)
				continue
			}
			p.StillPosition = pos
		default:
			ignored = append(ignored, f.Name)
		}
	}
	return ignored
}
