// Package storage manages per-request scratch files for external tools.
// Every entry lives directly under one root directory and carries the
// ScratchPrefix so that orphans can be found and removed later.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ScratchPrefix starts the name of every scratch entry.
const ScratchPrefix = "mediaxcode-"

// Scratch creates uniquely named temporary files and directories.
type Scratch struct {
	root string
}

// NewScratch creates a scratch area under root. An empty root uses the OS
// temporary directory.
func NewScratch(root string) (*Scratch, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Scratch{root: abs}, nil
}

// Root returns the absolute scratch directory.
func (s *Scratch) Root() string {
	return s.root
}

// name returns a fresh entry name: prefix, ULID, then suffix.
func (s *Scratch) name(suffix string) string {
	return filepath.Join(s.root, ScratchPrefix+strings.ToLower(ulid.Make().String())+suffix)
}

// File writes data to a new file whose name ends with suffix.
// The returned cleanup removes it.
func (s *Scratch) File(data []byte, suffix string) (string, func(), error) {
	path := s.name(suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", func() {}, fmt.Errorf("creating scratch file: %w", err)
	}
	cleanup := s.remover(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("writing scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("closing scratch file: %w", err)
	}
	return path, cleanup, nil
}

// Path reserves a unique path ending with suffix without creating it, for
// tools that create their own output. The cleanup removes whatever was
// written there, including files sharing the path as a prefix (such as
// two-pass encoder logs).
func (s *Scratch) Path(suffix string) (string, func()) {
	path := s.name(suffix)
	return path, func() {
		matches, _ := filepath.Glob(path + "*")
		for _, m := range matches {
			s.remover(m)()
		}
	}
}

// Dir creates a new directory whose name ends with suffix.
func (s *Scratch) Dir(suffix string) (string, func(), error) {
	path := s.name(suffix)
	if err := os.Mkdir(path, 0o700); err != nil {
		return "", func() {}, fmt.Errorf("creating scratch directory: %w", err)
	}
	return path, s.remover(path), nil
}

// Contains reports whether path is a scratch entry (or inside one) under root.
func (s *Scratch) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	first, _, _ := strings.Cut(rel, string(filepath.Separator))
	return strings.HasPrefix(first, ScratchPrefix)
}

func (s *Scratch) remover(path string) func() {
	return func() {
		if s.Contains(path) {
			_ = os.RemoveAll(path)
		}
	}
}
