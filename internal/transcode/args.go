// Package transcode is the ffmpeg-backed video backend. It turns a loaded
// source and its accumulated operations into one or two ffmpeg invocations
// per output format.
package transcode

import (
	"strconv"
	"strings"
)

type argKind int

const (
	kindFlag argKind = iota
	kindValue
	kindParams
)

type arg struct {
	kind   argKind
	flag   string
	value  string
	params []string
}

// Args is an ordered list of ffmpeg output options. It is rendered once per
// encoding pass so that pass-specific options land in the right place.
type Args struct {
	items []arg
}

// Flag appends an option without a value.
func (a *Args) Flag(flag string) *Args {
	a.items = append(a.items, arg{kind: kindFlag, flag: flag})
	return a
}

// Set appends an option with a value.
func (a *Args) Set(flag, value string) *Args {
	a.items = append(a.items, arg{kind: kindValue, flag: flag, value: value})
	return a
}

// setIf appends flag when value is set (non-empty).
func (a *Args) setIf(flag, value string) {
	if value != "" {
		a.Set(flag, value)
	}
}

// setIfTruthy appends flag when value is set and not zero.
func (a *Args) setIfTruthy(flag, value string) {
	if truthy(value) {
		a.Set(flag, value)
	}
}

// Params appends a colon-joined key=value option. It is always rendered,
// even when params is empty, and receives the two-pass keys.
func (a *Args) Params(flag string, params []string) *Args {
	a.items = append(a.items, arg{kind: kindParams, flag: flag, params: append([]string(nil), params...)})
	return a
}

// Has reports whether flag is present.
func (a *Args) Has(flag string) bool {
	for _, it := range a.items {
		if it.flag == flag {
			return true
		}
	}
	return false
}

// Value returns the value of flag, or "" when absent.
func (a *Args) Value(flag string) string {
	for _, it := range a.items {
		if it.flag != flag {
			continue
		}
		if it.kind == kindParams {
			return strings.Join(it.params, ":")
		}
		return it.value
	}
	return ""
}

// Strings renders the options for a single-pass encode.
func (a *Args) Strings() []string {
	return a.Render(0, "")
}

// Render renders the options for pass (1 or 2) of a two-pass encode sharing
// the statistics file logPath. Pass 0 renders a single-pass encode.
//
// When a params option is present the pass and stats keys are added to it;
// otherwise "-pass N -passlogfile logPath" is appended.
func (a *Args) Render(pass int, logPath string) []string {
	out := make([]string, 0, len(a.items)*2+4)
	hasParams := false

	for _, it := range a.items {
		switch it.kind {
		case kindFlag:
			out = append(out, it.flag)
		case kindValue:
			out = append(out, it.flag, it.value)
		case kindParams:
			hasParams = true
			params := it.params
			if pass > 0 {
				params = append(append([]string(nil), params...),
					"pass="+strconv.Itoa(pass), "stats="+logPath)
			}
			out = append(out, it.flag, strings.Join(params, ":"))
		}
	}

	if pass > 0 && !hasParams {
		out = append(out, "-pass", strconv.Itoa(pass), "-passlogfile", logPath)
	}
	return out
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}
