// Package layout resolves where a recording's artifacts live on disk.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/offlinefirst/deskrec/pkg/config"
)

// Layout represents the absolute filesystem locations for recordings.
type Layout struct {
	Root           string
	SessionLogPath string
	MediaPath      string
	TelemetryDir   string
}

// Build resolves the configured paths against the output directory. Relative
// file names are placed inside it; absolute ones are kept.
func Build(paths config.PathsConfig) (Layout, error) {
	root := strings.TrimSpace(paths.OutputDir)
	if root == "" {
		return Layout{}, errors.New("output directory must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve output directory: %w", err)
	}
	return Layout{
		Root:           abs,
		SessionLogPath: within(abs, paths.SessionLog),
		MediaPath:      within(abs, paths.MediaFile),
		TelemetryDir:   filepath.Join(abs, "telemetry"),
	}, nil
}

func within(root, name string) string {
	name = strings.TrimSpace(name)
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(root, name)
}

// Relative expresses path relative to the layout root when it lies inside it.
func (l Layout) Relative(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// EnsureFilesystem prepares the directories the artifacts are written into.
// The telemetry directory is only created when withTelemetry is set.
func EnsureFilesystem(l Layout, withTelemetry bool) error {
	dirs := []string{
		l.Root,
		filepath.Dir(l.SessionLogPath),
		filepath.Dir(l.MediaPath),
	}
	if withTelemetry {
		dirs = append(dirs, l.TelemetryDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
