package sources

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/deskrec/pkg/logging"
	"github.com/offlinefirst/deskrec/pkg/permissions"
)

func newSelector(t *testing.T, opts Options) *Selector {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	sel, err := NewSelector(opts)
	require.NoError(t, err)
	return sel
}

func TestSelectReturnsFirstSource(t *testing.T) {
	sel := newSelector(t, Options{Enumerator: ParseList("screen:0:0=Primary,screen:0:1=Secondary")})

	src, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "screen:0:0", src.ID)
	assert.Equal(t, "Primary", src.Name)
	assert.Equal(t, "0", src.DisplayID)
}

func TestSelectEmptyEnumerationIsTyped(t *testing.T) {
	var calls int32
	enum := EnumeratorFunc(func(context.Context, Filter) ([]SourceHandle, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	sel := newSelector(t, Options{Enumerator: enum, Retries: 3, RetryInterval: time.Millisecond})

	_, err := sel.Select(context.Background())
	require.ErrorIs(t, err, ErrNoSourceAvailable)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "empty enumeration must not be retried")
}

func TestSelectRetriesTransientFailures(t *testing.T) {
	var calls int32
	enum := EnumeratorFunc(func(context.Context, Filter) ([]SourceHandle, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("compositor busy")
		}
		return []SourceHandle{{ID: "screen:0:0", Name: "Entire Screen", Kind: KindScreen}}, nil
	})
	sel := newSelector(t, Options{Enumerator: enum, Retries: 2, RetryInterval: time.Millisecond})

	src, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "screen:0:0", src.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSelectWithoutRetriesFailsOnce(t *testing.T) {
	var calls int32
	enum := EnumeratorFunc(func(context.Context, Filter) ([]SourceHandle, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("compositor busy")
	})
	sel := newSelector(t, Options{Enumerator: enum})

	_, err := sel.Select(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compositor busy")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSelectTimesOutStuckEnumerator(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	enum := EnumeratorFunc(func(context.Context, Filter) ([]SourceHandle, error) {
		<-release
		return nil, nil
	})
	sel := newSelector(t, Options{Enumerator: enum, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := sel.Select(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSelectHonoursPermissionProbe(t *testing.T) {
	var calls int32
	enum := EnumeratorFunc(func(context.Context, Filter) ([]SourceHandle, error) {
		atomic.AddInt32(&calls, 1)
		return []SourceHandle{{ID: "screen:0:0"}}, nil
	})
	sel := newSelector(t, Options{
		Enumerator: enum,
		Permission: func() permissions.ProbeResult {
			return permissions.ProbeResult{Status: permissions.StatusDenied, Message: "denied via env"}
		},
	})

	_, err := sel.Select(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestNewSelectorValidates(t *testing.T) {
	_, err := NewSelector(Options{})
	assert.Error(t, err)

	_, err = NewSelector(Options{Enumerator: StaticEnumerator{}, Retries: -1})
	assert.Error(t, err)
}

func TestFilterDropsWindows(t *testing.T) {
	list, err := ParseList("window:42=Editor,screen:1:0=Screen").ListSources(context.Background(), DefaultFilter())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, KindScreen, list[0].Kind)
}

func TestParseListEmpty(t *testing.T) {
	assert.Empty(t, ParseList(""))
	assert.Empty(t, ParseList(" , "))
	list := ParseList("screen:0:0")
	require.Len(t, list, 1)
	assert.Equal(t, "screen:0:0", list[0].Name)
}

func TestDisplayEnumerator(t *testing.T) {
	orig := goos
	t.Cleanup(func() { goos = orig })

	env := map[string]string{}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	enum := DisplayEnumerator{LookupEnv: lookup}
	ctx := context.Background()

	goos = "linux"
	list, err := enum.ListSources(ctx, DefaultFilter())
	require.NoError(t, err)
	assert.Empty(t, list)

	env["DISPLAY"] = ":0"
	list, err = enum.ListSources(ctx, DefaultFilter())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "screen::0:0", list[0].ID)

	goos = "darwin"
	list, err = enum.ListSources(ctx, DefaultFilter())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Entire Screen", list[0].Name)

	env[EnvSources] = ""
	list, err = enum.ListSources(ctx, DefaultFilter())
	require.NoError(t, err)
	assert.Empty(t, list)
}
