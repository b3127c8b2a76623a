// Package media is the boundary to the screen capture and encode facility.
// It maps recording settings onto capture constraints, drives a Pipeline that
// emits opaque WebM chunks, collects them in arrival order, and hands the
// finished blob to a Sink.
package media

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/offlinefirst/deskrec/pkg/sources"
)

// DefaultMimeType is the container and codec requested from every pipeline.
const DefaultMimeType = "video/webm;codecs=vp9"

// Resolution is a named capture size.
type Resolution struct {
	Name   string
	Width  int
	Height int
}

var resolutions = map[string]Resolution{
	"4k":    {Name: "4k", Width: 3840, Height: 2160},
	"2k":    {Name: "2k", Width: 2560, Height: 1440},
	"1080p": {Name: "1080p", Width: 1920, Height: 1080},
	"720p":  {Name: "720p", Width: 1280, Height: 720},
}

// LookupResolution resolves a preset name such as "1080p".
func LookupResolution(name string) (Resolution, error) {
	res, ok := resolutions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownResolution, name)
	}
	return res, nil
}

// Resolutions lists the presets from largest to smallest.
func Resolutions() []Resolution {
	out := make([]Resolution, 0, len(resolutions))
	for _, r := range resolutions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Width > out[j].Width })
	return out
}

// Settings are the user-facing recording knobs.
type Settings struct {
	Resolution string
	FrameRate  int
	Bitrate    int
	MimeType   string
}

// FrameRate carries the ideal and maximum capture rates.
type FrameRate struct {
	Ideal int
	Max   int
}

// Constraints are handed to a Pipeline when recording starts.
type Constraints struct {
	Source    sources.SourceHandle
	Width     int
	Height    int
	FrameRate FrameRate
	Bitrate   int
	MimeType  string
}

// BuildConstraints maps settings onto capture constraints for source. Frame
// rate and bitrate are forwarded unchecked; the pipeline decides what it can honour.
func BuildConstraints(source sources.SourceHandle, s Settings) (Constraints, error) {
	res, err := LookupResolution(s.Resolution)
	if err != nil {
		return Constraints{}, err
	}
	mime := strings.TrimSpace(s.MimeType)
	if mime == "" {
		mime = DefaultMimeType
	}
	return Constraints{
		Source:    source,
		Width:     res.Width,
		Height:    res.Height,
		FrameRate: FrameRate{Ideal: s.FrameRate, Max: s.FrameRate},
		Bitrate:   s.Bitrate,
		MimeType:  mime,
	}, nil
}

// Pipeline is an external capture and encode facility. Start returns once
// capture is running; emit may be called from any goroutine until Stop
// returns. Stop flushes the final chunk before returning.
type Pipeline interface {
	Start(ctx context.Context, c Constraints, emit func([]byte)) error
	Stop(ctx context.Context) error
}
