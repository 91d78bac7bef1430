package targets

import (
	"testing"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/stretchr/testify/require"

	"github.com/vigil-obs/vigil/internal/runtime/logging"
)

func testTarget(addr string) Target {
	return Target{Address: addr}
}

func ids(ts []Target) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID())
	}
	return out
}

func drain(r *Registry) []Event {
	var evs []Event
	for {
		select {
		case ev := <-r.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestRegistryUpsertAddsAndLists(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	r.Upsert("static", []Target{testTarget("a:80"), testTarget("b:80")})

	require.Equal(t, []string{"http://a:80/metrics", "http://b:80/metrics"}, ids(r.List()))

	evs := drain(r)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		require.Equal(t, TargetAdded, ev.Type)
	}
}

func TestRegistryRemovalGracePeriod(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	r.Upsert("static", []Target{testTarget("a:80"), testTarget("b:80")})
	drain(r)

	// Two snapshots without b: retained.
	r.Upsert("static", []Target{testTarget("a:80")})
	r.Upsert("static", []Target{testTarget("a:80")})
	require.Len(t, r.List(), 2)
	require.Empty(t, drain(r))

	// Third consecutive miss purges it.
	r.Upsert("static", []Target{testTarget("a:80")})
	require.Equal(t, []string{"http://a:80/metrics"}, ids(r.List()))

	evs := drain(r)
	require.Len(t, evs, 1)
	require.Equal(t, TargetRemoved, evs[0].Type)
	require.Equal(t, "http://b:80/metrics", evs[0].Target.ID())
}

func TestRegistryReappearanceResetsMisses(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	r.Upsert("static", []Target{testTarget("a:80")})
	r.Upsert("static", nil)
	r.Upsert("static", nil)
	// Target comes back before hitting the threshold.
	r.Upsert("static", []Target{testTarget("a:80")})
	r.Upsert("static", nil)
	r.Upsert("static", nil)
	require.Len(t, r.List(), 1)

	r.Upsert("static", nil)
	require.Empty(t, r.List())
}

func TestRegistryLabelRefresh(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	tgt := testTarget("a:80")
	tgt.Labels = labels.FromStrings("env", "dev")
	r.Upsert("file", []Target{tgt})
	drain(r)

	tgt.Labels = labels.FromStrings("env", "prod")
	r.Upsert("file", []Target{tgt})

	got, ok := r.Get("http://a:80/metrics")
	require.True(t, ok)
	require.Equal(t, "prod", got.Labels.Get("env"))

	evs := drain(r)
	require.Len(t, evs, 1)
	require.Equal(t, TargetUpdated, evs[0].Type)
}

func TestRegistryLastSourceWins(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	tgt := testTarget("a:80")
	tgt.Labels = labels.FromStrings("team", "infra")
	r.Upsert("file", []Target{tgt})

	tgt.Labels = labels.FromStrings("team", "platform")
	r.Upsert("http", []Target{tgt})

	got, ok := r.Get("http://a:80/metrics")
	require.True(t, ok)
	require.Equal(t, "http", got.Source)
	require.Equal(t, "platform", got.Labels.Get("team"))
	require.Len(t, r.List(), 1)

	// Misses against the old source no longer affect the target.
	r.Upsert("file", nil)
	r.Upsert("file", nil)
	r.Upsert("file", nil)
	require.Len(t, r.List(), 1)
}

func TestRegistryDuplicateWithinSnapshot(t *testing.T) {
	r := NewRegistry(logging.NewNop(), 3, nil)

	r.Upsert("static", []Target{testTarget("a:80"), testTarget("a:80")})
	require.Len(t, r.List(), 1)
	require.Len(t, drain(r), 1)
}

func TestTargetValidate(t *testing.T) {
	require.NoError(t, testTarget("a:80").Validate())
	require.Error(t, Target{}.Validate())
	require.Error(t, Target{Address: "a:80", Scheme: "ftp"}.Validate())
	require.Error(t, Target{Address: "a:80", MetricsPath: "metrics"}.Validate())
}
