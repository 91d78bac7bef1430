package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const target = "http://a:80/metrics"

func TestTrackerUnknownUntilFirstOutcome(t *testing.T) {
	tr := NewTracker(3)
	require.Equal(t, Unknown, tr.Status(target).Health)
}

func TestTrackerUpOnFirstSuccess(t *testing.T) {
	tr := NewTracker(3)
	now := time.Now()

	tr.ObserveSuccess(target, now, 25*time.Millisecond)

	s := tr.Status(target)
	require.Equal(t, Up, s.Health)
	require.Equal(t, now, s.LastSuccess)
	require.Equal(t, 25*time.Millisecond, s.LastScrapeDuration)
	require.Zero(t, s.ConsecutiveFailures)
}

func TestTrackerDownAfterThreshold(t *testing.T) {
	tr := NewTracker(3)
	start := time.Now()

	tr.ObserveSuccess(target, start, time.Millisecond)

	errConn := errors.New("connection refused")
	tr.ObserveFailure(target, start.Add(10*time.Second), time.Millisecond, errConn)
	require.Equal(t, Up, tr.Status(target).Health)
	tr.ObserveFailure(target, start.Add(20*time.Second), time.Millisecond, errConn)
	require.Equal(t, Up, tr.Status(target).Health)

	// The third consecutive failure crosses the threshold, exactly then.
	tr.ObserveFailure(target, start.Add(30*time.Second), time.Millisecond, errConn)
	s := tr.Status(target)
	require.Equal(t, Down, s.Health)
	require.Equal(t, 3, s.ConsecutiveFailures)
	require.Equal(t, "connection refused", s.LastError)
	// Last success survives for staleness reporting.
	require.Equal(t, start, s.LastSuccess)
}

func TestTrackerSingleSuccessRecovers(t *testing.T) {
	tr := NewTracker(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		tr.ObserveFailure(target, now, time.Millisecond, errors.New("timeout"))
	}
	require.Equal(t, Down, tr.Status(target).Health)

	tr.ObserveSuccess(target, now.Add(time.Minute), time.Millisecond)
	s := tr.Status(target)
	require.Equal(t, Up, s.Health)
	require.Zero(t, s.ConsecutiveFailures)
	require.Empty(t, s.LastError)
}

func TestTrackerFailuresBelowThresholdKeepUnknown(t *testing.T) {
	tr := NewTracker(3)
	now := time.Now()

	tr.ObserveFailure(target, now, time.Millisecond, errors.New("timeout"))
	tr.ObserveFailure(target, now, time.Millisecond, errors.New("timeout"))

	require.Equal(t, Unknown, tr.Status(target).Health)
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker(3)
	tr.ObserveSuccess(target, time.Now(), time.Millisecond)
	require.Len(t, tr.StatusAll(), 1)

	tr.Forget(target)
	require.Empty(t, tr.StatusAll())
	require.Equal(t, Unknown, tr.Status(target).Health)
}
