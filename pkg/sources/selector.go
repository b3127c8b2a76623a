package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/offlinefirst/deskrec/pkg/permissions"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryInterval = 250 * time.Millisecond
)

// Options configure a Selector.
type Options struct {
	Enumerator Enumerator
	Filter     Filter
	// Timeout bounds each enumeration attempt. Zero selects ten seconds.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries       int
	RetryInterval time.Duration
	// Permission probes screen-capture authorisation before enumerating.
	Permission func() permissions.ProbeResult
	Logger     *slog.Logger
}

// Selector resolves the capture source for a new session.
type Selector struct {
	enumerator    Enumerator
	filter        Filter
	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	permission    func() permissions.ProbeResult
	logger        *slog.Logger
}

// NewSelector validates options and returns a Selector.
func NewSelector(opts Options) (*Selector, error) {
	if opts.Enumerator == nil {
		return nil, errors.New("sources: enumerator is required")
	}
	if opts.Retries < 0 {
		return nil, errors.New("sources: retries must not be negative")
	}
	filter := opts.Filter
	if len(filter.Types) == 0 && filter.ThumbnailWidth == 0 && filter.ThumbnailHeight == 0 {
		filter = DefaultFilter()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		enumerator:    opts.Enumerator,
		filter:        filter,
		timeout:       timeout,
		retries:       opts.Retries,
		retryInterval: interval,
		permission:    opts.Permission,
		logger:        logger,
	}, nil
}

// List performs one bounded enumeration and returns every matching source.
func (s *Selector) List(ctx context.Context) ([]SourceHandle, error) {
	if err := s.checkPermission(); err != nil {
		return nil, err
	}
	return s.attempt(ctx)
}

// Select returns the first enumerated source. Transient failures are retried
// up to the configured count; an empty enumeration or a permission refusal is
// final.
func (s *Selector) Select(ctx context.Context) (SourceHandle, error) {
	if err := s.checkPermission(); err != nil {
		s.logger.Warn("screen capture not permitted", "error", err)
		return SourceHandle{}, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxElapsedTime = 0

	attempts := 0
	operation := func() (SourceHandle, error) {
		attempts++
		list, err := s.attempt(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return SourceHandle{}, backoff.Permanent(err)
			}
			s.logger.Debug("source enumeration failed", "attempt", attempts, "error", err)
			return SourceHandle{}, err
		}
		src, err := First(list)
		if err != nil {
			return SourceHandle{}, backoff.Permanent(err)
		}
		return src, nil
	}

	src, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.retries)), ctx))
	if err != nil {
		s.logger.Warn("capture source selection failed", "attempts", attempts, "error", err)
		return SourceHandle{}, err
	}
	s.logger.Info("capture source selected", "source_id", src.ID, "source_name", src.Name, "attempts", attempts)
	return src, nil
}

// attempt runs one enumeration raced against the per-attempt timeout so an
// enumerator that ignores its context still cannot stall selection.
func (s *Selector) attempt(ctx context.Context) ([]SourceHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		list []SourceHandle
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := s.enumerator.ListSources(ctx, s.filter)
		done <- result{list: list, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
			}
			return nil, fmt.Errorf("list sources: %w", res.err)
		}
		return res.list, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
		}
		return nil, ctx.Err()
	}
}

func (s *Selector) checkPermission() error {
	if s.permission == nil {
		return nil
	}
	res := s.permission()
	if res.Denied() {
		if res.Message != "" {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, res.Message)
		}
		return ErrPermissionDenied
	}
	return nil
}
