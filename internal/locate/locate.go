// Package locate supplies the device position used to pick nearby hazards.
package locate

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/resilience"
)

// DefaultTimeout bounds a single position lookup.
const DefaultTimeout = 8 * time.Second

var (
	// ErrPermissionDenied means the user has not granted location access.
	ErrPermissionDenied = resilience.WithKind(resilience.FailurePermission,
		eris.New("locate: location permission denied"))

	// ErrTimeout means no position arrived before the lookup deadline.
	ErrTimeout = resilience.WithKind(resilience.FailureTimeout,
		eris.New("locate: location timeout"))
)

// Locator returns the current position.
type Locator interface {
	Locate(ctx context.Context) (model.Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (model.Coordinate, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (model.Coordinate, error) {
	return f(ctx)
}

// Static always reports the same position.
type Static model.Coordinate

// Locate returns s.
func (s Static) Locate(ctx context.Context) (model.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "locate: static")
	}
	return model.Coordinate(s), nil
}

// Disabled behaves like a device where location access was refused.
type Disabled struct{}

// Locate returns ErrPermissionDenied.
func (Disabled) Locate(context.Context) (model.Coordinate, error) {
	return model.Coordinate{}, ErrPermissionDenied
}

type timeoutLocator struct {
	inner   Locator
	timeout time.Duration
	clock   clockwork.Clock
}

// WithTimeout bounds every lookup on l. A lookup still running when d
// elapses on clock fails with ErrTimeout. A non-positive d uses
// DefaultTimeout and a nil clock uses the real one.
func WithTimeout(l Locator, d time.Duration, clock clockwork.Clock) Locator {
	if d <= 0 {
		d = DefaultTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &timeoutLocator{inner: l, timeout: d, clock: clock}
}

type locateResult struct {
	pos model.Coordinate
	err error
}

func (t *timeoutLocator) Locate(ctx context.Context) (model.Coordinate, error) {
	ctx, cancel := clockwork.WithTimeout(ctx, t.clock, t.timeout)
	defer cancel()

	done := make(chan locateResult, 1)
	go func() {
		pos, err := t.inner.Locate(ctx)
		done <- locateResult{pos: pos, err: err}
	}()

	select {
	case res := <-done:
		return res.pos, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.Coordinate{}, ErrTimeout
		}
		return model.Coordinate{}, eris.Wrap(ctx.Err(), "locate: cancelled")
	}
}
