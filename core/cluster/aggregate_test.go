package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-route/core/route"
	"github.com/codewandler/clstr-route/core/topology"
)

func targetsFor(addrs ...string) []route.Target {
	out := make([]route.Target, len(addrs))
	for i, a := range addrs {
		out[i] = route.Target{Node: topology.Node{Addr: a, Role: topology.RolePrimary}, Slot: -1}
	}
	return out
}

func TestAggregate_shape(t *testing.T) {
	res, err := aggregate(route.ByAddress("a:1"), targetsFor("a:1"), []Outcome{Value("x")})
	require.NoError(t, err)
	require.False(t, res.IsMulti())
	require.Equal(t, "x", res.Value())

	res, err = aggregate(route.AllPrimaries, targetsFor("a:1"), []Outcome{Value("x")})
	require.NoError(t, err)
	require.True(t, res.IsMulti())
	require.Equal(t, map[string]any{"a:1": "x"}, res.Values())

	res, err = aggregate(route.AllNodes, targetsFor("a:1", "b:1"), []Outcome{Value(nil), Value(int64(3))})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a:1": nil, "b:1": int64(3)}, res.Values())
	require.Equal(t, []string{"a:1", "b:1"}, res.Addrs())
}

func TestAggregate_failures(t *testing.T) {
	loop := &redirectLoopError{hops: 1, last: errors.New("MOVED 1 c:1")}

	tests := []struct {
		name     string
		outcomes []Outcome
		kind     ErrorKind
		values   int
	}{
		{"partial", []Outcome{Value("x"), Fatal(errors.New("boom")), Value("y")}, KindPartialFailure, 2},
		{"partial with loop", []Outcome{Value("x"), Fatal(loop), Value("y")}, KindPartialFailure, 2},
		{"total", []Outcome{Transient(ErrNodeUnavailable), Fatal(loop), Fatal(errors.New("boom"))}, KindTotalFailure, 0},
		{"all looping", []Outcome{Fatal(loop), Fatal(loop), Fatal(loop)}, KindRedirectLoopExceeded, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// unsorted on purpose
			_, err := aggregate(route.AllPrimaries, targetsFor("c:1", "a:1", "b:1"), tt.outcomes)
			e, ok := AsError(err)
			require.True(t, ok)
			require.Equal(t, tt.kind, e.Kind)
			require.Len(t, e.Values, tt.values)
			require.Len(t, e.Failures, 3-tt.values)
			for i := 1; i < len(e.Failures); i++ {
				require.Less(t, e.Failures[i-1].Node.Addr, e.Failures[i].Node.Addr)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Kind:      KindPartialFailure,
		Directive: route.AllPrimaries,
		Failures: []NodeFailure{
			{Node: topology.Node{Addr: "b:1"}, Kind: OutcomeFatal, Err: &redirectLoopError{hops: 1, last: errors.New("MOVED 1 c:1")}},
		},
		Values: map[string]any{"a:1": "PONG"},
	}
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorIs(t, err, ErrRedirectLoopExceeded)
	require.NotErrorIs(t, err, ErrTotalFailure)
	require.EqualError(t, err, "cluster: partial failure [all-primaries] (1 of 2 nodes failed); b:1: fatal: redirect loop exceeded after 1 hops: MOVED 1 c:1")
}
