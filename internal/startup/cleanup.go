// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/mediaxcode/internal/storage"
)

// DefaultCleanupAge is the default maximum age for orphaned scratch entries (1 hour).
const DefaultCleanupAge = 1 * time.Hour

// CleanupOrphanedScratch removes scratch entries older than maxAge from baseDir.
// Only entries whose name starts with storage.ScratchPrefix are considered, so a
// shared temp directory is safe to sweep. Files and directories are both removed:
// staged inputs and outputs are files, WebP frame sets are directories.
//
// Entries are normally removed by the request that created them. Orphans remain
// when the process is killed while an external tool is running.
//
// Returns the number of entries removed and any error encountered.
func CleanupOrphanedScratch(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("scratch directory does not exist, skipping cleanup",
			slog.String("path", baseDir),
		)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			slog.String("path", baseDir),
			slog.Any("error", err),
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), storage.ScratchPrefix) {
			continue
		}

		path := filepath.Join(baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get scratch entry info",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}

		age := time.Since(info.ModTime()).Round(time.Second)
		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent scratch entry",
				slog.String("path", path),
				slog.Duration("age", age),
			)
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove orphaned scratch entry",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}

		logger.Info("removed orphaned scratch entry",
			slog.String("path", path),
			slog.Bool("dir", entry.IsDir()),
			slog.Duration("age", age),
		)
		removed++
	}

	return removed, nil
}
