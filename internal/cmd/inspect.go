package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/offlinefirst/deskrec/pkg/events"
)

var errUnsupportedFile = errors.New("unsupported file type")

// artifactReport describes a recorded file.
type artifactReport struct {
	Path      string     `json:"path"`
	MimeType  string     `json:"mimeType"`
	Bytes     int64      `json:"bytes"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Mouse     int        `json:"mouseSamples,omitempty"`
	Keys      int        `json:"keySamples,omitempty"`
	// SpanMillis is the offset of the last sample.
	SpanMillis int64 `json:"spanMs,omitempty"`
}

func (rc *RootCommand) newInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarise a session log or media file",
		Example: `  deskrec inspect recordings/recording_data.json
  deskrec inspect recordings/screen-recording.webm --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspectArtifact(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(rc.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(rc.stdout, "%s\n  type:  %s\n  size:  %d bytes\n", report.Path, report.MimeType, report.Bytes)
			if report.StartTime != nil {
				fmt.Fprintf(rc.stdout, "  start: %s\n", report.StartTime.Format(time.RFC3339Nano))
				fmt.Fprintf(rc.stdout, "  mouse: %d samples\n  keys:  %d samples\n  span:  %dms\n", report.Mouse, report.Keys, report.SpanMillis)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func inspectArtifact(path string) (artifactReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return artifactReport{}, err
	}
	if info.IsDir() {
		return artifactReport{}, fmt.Errorf("%s is a directory", path)
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return artifactReport{}, fmt.Errorf("detect file type: %w", err)
	}
	report := artifactReport{Path: path, MimeType: mime.String(), Bytes: info.Size()}

	switch {
	case mime.Is("video/webm"), mime.Is("video/x-matroska"):
		return report, nil
	case mime.Is("application/json"), strings.EqualFold(filepath.Ext(path), ".json"):
		log, err := events.Load(path)
		if err != nil {
			return report, err
		}
		report.Mouse = len(log.MousePositions)
		report.Keys = len(log.KeyboardInputs)
		if log.StartTime != nil {
			start := time.UnixMilli(*log.StartTime).UTC()
			report.StartTime = &start
		}
		for _, s := range log.Samples() {
			if s.Offset() > report.SpanMillis {
				report.SpanMillis = s.Offset()
			}
		}
		return report, nil
	default:
		return report, fmt.Errorf("%w: %s", errUnsupportedFile, mime.String())
	}
}
