// Package sources enumerates capturable screens and picks the one handed to
// the media pipeline. Selection is deterministic: the first enumerated source
// wins and an empty enumeration is reported as ErrNoSourceAvailable.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a capturable surface.
type Kind string

const (
	KindScreen Kind = "screen"
	KindWindow Kind = "window"
)

// SourceHandle identifies a capturable screen or window returned by enumeration.
type SourceHandle struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	DisplayID string `json:"display_id,omitempty"`
}

// Filter narrows an enumeration request.
type Filter struct {
	Types           []Kind
	ThumbnailWidth  int
	ThumbnailHeight int
}

// DefaultFilter requests screens only, with 1080p thumbnails.
func DefaultFilter() Filter {
	return Filter{Types: []Kind{KindScreen}, ThumbnailWidth: 1920, ThumbnailHeight: 1080}
}

// Accepts reports whether the filter admits sources of the given kind.
// An empty type list admits everything.
func (f Filter) Accepts(kind Kind) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// Enumerator lists the sources currently available. Each call is a one-shot
// snapshot; callers re-invoke it to refresh.
type Enumerator interface {
	ListSources(ctx context.Context, filter Filter) ([]SourceHandle, error)
}

// EnumeratorFunc adapts a function literal to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context, filter Filter) ([]SourceHandle, error)

// ListSources calls the underlying function.
func (f EnumeratorFunc) ListSources(ctx context.Context, filter Filter) ([]SourceHandle, error) {
	return f(ctx, filter)
}

var (
	// ErrNoSourceAvailable is returned when enumeration yields nothing to capture.
	ErrNoSourceAvailable = errors.New("no capture source available")
	// ErrPermissionDenied indicates the platform refused screen capture.
	ErrPermissionDenied = errors.New("screen capture permission denied")
	// ErrTimeout indicates enumeration did not finish within the acquisition timeout.
	ErrTimeout = errors.New("source enumeration timed out")
)

// First returns element zero of the enumeration, or ErrNoSourceAvailable.
func First(list []SourceHandle) (SourceHandle, error) {
	if len(list) == 0 {
		return SourceHandle{}, ErrNoSourceAvailable
	}
	return list[0], nil
}

// StaticEnumerator always returns the same list, filtered by kind.
type StaticEnumerator []SourceHandle

// ListSources returns a copy of the static list.
func (s StaticEnumerator) ListSources(ctx context.Context, filter Filter) ([]SourceHandle, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make([]SourceHandle, 0, len(s))
	for _, src := range s {
		if filter.Accepts(src.Kind) {
			out = append(out, src)
		}
	}
	return out, nil
}

// ParseList decodes a comma separated "id=name" list such as
// "screen:0:0=Entire Screen,window:42=Editor". Kind is inferred from the id
// prefix and defaults to screen. An empty string yields an empty list.
func ParseList(value string) StaticEnumerator {
	var out StaticEnumerator
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, ok := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if !ok || strings.TrimSpace(name) == "" {
			name = id
		}
		kind := KindScreen
		if strings.HasPrefix(id, string(KindWindow)+":") {
			kind = KindWindow
		}
		out = append(out, SourceHandle{ID: id, Name: strings.TrimSpace(name), Kind: kind, DisplayID: displayFromID(id)})
	}
	return out
}

// displayFromID extracts the display component from ids shaped "screen:<display>:<index>".
func displayFromID(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) < 3 || parts[0] != string(KindScreen) {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], ":")
}

func screenID(display string, index int) string {
	return fmt.Sprintf("%s:%s:%d", KindScreen, display, index)
}
