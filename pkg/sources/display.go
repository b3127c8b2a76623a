package sources

import (
	"context"
	"os"
	"runtime"
	"strings"
)

// EnvSources overrides enumeration with a fixed list parsed by ParseList.
// Setting it to an empty string simulates a machine with nothing to capture.
const EnvSources = "DESKREC_SOURCES"

var (
	goos      = runtime.GOOS
	lookupEnv = os.LookupEnv
)

// DisplayEnumerator reports one screen source per detected display.
type DisplayEnumerator struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// ListSources inspects the environment for attached displays.
func (d DisplayEnumerator) ListSources(ctx context.Context, filter Filter) ([]SourceHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lookup := d.LookupEnv
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(EnvSources); ok {
		return ParseList(value).ListSources(ctx, filter)
	}

	var found StaticEnumerator
	switch goos {
	case "darwin", "windows":
		found = append(found, SourceHandle{ID: screenID("0", 0), Name: "Entire Screen", Kind: KindScreen, DisplayID: "0"})
	default:
		if display, ok := lookup("DISPLAY"); ok && strings.TrimSpace(display) != "" {
			display = strings.TrimSpace(display)
			found = append(found, SourceHandle{ID: screenID(display, 0), Name: "Screen " + display, Kind: KindScreen, DisplayID: display})
		}
		if wayland, ok := lookup("WAYLAND_DISPLAY"); ok && strings.TrimSpace(wayland) != "" {
			wayland = strings.TrimSpace(wayland)
			found = append(found, SourceHandle{ID: screenID(wayland, 0), Name: "Screen " + wayland, Kind: KindScreen, DisplayID: wayland})
		}
	}
	return found.ListSources(ctx, filter)
}
