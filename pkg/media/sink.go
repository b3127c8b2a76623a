package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pkg/browser"
)

// Output modes accepted by NewSink.
const (
	OutputFile     = "file"
	OutputDownload = "download"
)

const maxDuplicateNames = 1000

// Sink persists a finalized media blob and returns where it landed.
type Sink interface {
	Save(ctx context.Context, blob []byte) (string, error)
}

// FileSink writes to a fixed path, replacing any previous recording.
type FileSink struct {
	Path string
}

// Save writes blob to Path.
func (s FileSink) Save(ctx context.Context, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(s.Path) == "" {
		return "", errors.New("media file path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return "", fmt.Errorf("ensure media directory: %w", err)
	}
	if err := os.WriteFile(s.Path, blob, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.Path, nil
}

// DownloadSink drops recordings into the user's download directory under a
// browser style de-duplicated name and optionally reveals the file.
type DownloadSink struct {
	Dir    string
	Name   string
	Reveal bool
	// Open reveals the saved file. Defaults to browser.OpenFile.
	Open   func(path string) error
	Logger *slog.Logger
}

// DownloadDir is the user's download directory as resolved by XDG.
func DownloadDir() string {
	return xdg.UserDirs.Download
}

// NewDownloadSink targets the XDG download directory.
func NewDownloadSink(name string, reveal bool, logger *slog.Logger) *DownloadSink {
	return &DownloadSink{Dir: DownloadDir(), Name: name, Reveal: reveal, Logger: logger}
}

// Save writes blob under the first free name.
func (s *DownloadSink) Save(ctx context.Context, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		return "", errors.New("download directory is not known")
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return "", errors.New("download file name must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download directory: %w", err)
	}

	path, err := writeExclusive(dir, name, blob)
	if err != nil {
		return "", err
	}

	if s.Reveal {
		open := s.Open
		if open == nil {
			open = browser.OpenFile
		}
		if err := open(path); err != nil {
			logger := s.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("reveal download failed", "path", path, "error", err)
		}
	}
	return path, nil
}

// writeExclusive creates name, or "base (n).ext" for the first free n.
func writeExclusive(dir, name string, blob []byte) (string, error) {
	for i := 0; i < maxDuplicateNames; i++ {
		path := filepath.Join(dir, DuplicateName(name, i))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create download file: %w", err)
		}
		if _, err := f.Write(blob); err != nil {
			f.Close()
			return "", fmt.Errorf("write download file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close download file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free download name for %q", name)
}

// DuplicateName returns name for n == 0 and "base (n).ext" otherwise.
func DuplicateName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// SinkOptions select and configure an output mode.
type SinkOptions struct {
	Mode     string
	FilePath string
	FileName string
	Reveal   bool
	Logger   *slog.Logger
}

// NewSink builds the sink for the configured output mode.
func NewSink(opts SinkOptions) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", OutputFile:
		return FileSink{Path: opts.FilePath}, nil
	case OutputDownload:
		name := opts.FileName
		if name == "" {
			name = filepath.Base(opts.FilePath)
		}
		return NewDownloadSink(name, opts.Reveal, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported output mode %q", opts.Mode)
	}
}
