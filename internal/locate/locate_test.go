package locate

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/resilience"
)

var sf = model.Coordinate{Latitude: 37.7879, Longitude: -122.4314}

func TestStatic(t *testing.T) {
	pos, err := Static(sf).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sf, pos)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static(sf).Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Locate(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, resilience.FailurePermission, resilience.Classify(err))
}

func TestWithTimeout_FastLocator(t *testing.T) {
	l := WithTimeout(Static(sf), time.Second, clockwork.NewFakeClock())
	pos, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sf, pos)
}

func TestWithTimeout_Expires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	defer close(release)
	hang := LocatorFunc(func(context.Context) (model.Coordinate, error) {
		<-release
		return sf, nil
	})
	l := WithTimeout(hang, 0, clock)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Locate(context.Background())
		errCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultTimeout)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, resilience.FailureTimeout, resilience.Classify(err))
	case <-ctx.Done():
		t.Fatal("locate did not time out")
	}
}

func TestWithTimeout_InnerError(t *testing.T) {
	l := WithTimeout(Disabled{}, time.Second, nil)
	_, err := l.Locate(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestWithTimeout_ParentCancelled(t *testing.T) {
	hang := LocatorFunc(func(ctx context.Context) (model.Coordinate, error) {
		<-ctx.Done()
		return model.Coordinate{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(hang, time.Hour, nil).Locate(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}
