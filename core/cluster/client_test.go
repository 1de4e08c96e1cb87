package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-route/core/route"
	"github.com/codewandler/clstr-route/core/topology"
)

// otherPrimary returns a primary of mc other than addr.
func otherPrimary(t *testing.T, mc *MemoryCluster, addr string) string {
	for _, p := range mc.Primaries() {
		if p != addr {
			return p
		}
	}
	t.Fatalf("no primary other than %s", addr)
	return ""
}

func slotOwner(t *testing.T, mc *MemoryCluster, key string) string {
	owner, ok := mc.Snapshot().SlotOwner(topology.SlotForKey(key))
	require.True(t, ok)
	return owner.Addr
}

func TestClient_ping(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	res, err := c.ExecuteRouted(t.Context(), NewCommand("PING"), route.ByAddress("10.0.0.1:7000"))
	require.NoError(t, err)
	require.False(t, res.IsMulti())
	require.Equal(t, "PONG", res.Value())

	// lazily bootstrapped from the seed
	require.Equal(t, 1, mc.Queries())
	require.Equal(t, uint64(1), c.Topology().Current().Epoch())

	res, err = c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)
	require.True(t, res.IsMulti())
	require.Equal(t, map[string]any{
		"10.0.0.1:7000": "PONG",
		"10.0.0.2:7000": "PONG",
		"10.0.0.3:7000": "PONG",
	}, res.Values())
	require.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"}, res.Addrs())
}

func TestClient_resultShape(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 1)
	c := CreateTestClient(t, mc, ClientOptions{})

	tests := []struct {
		d     route.Directive
		multi bool
		n     int
	}{
		{route.AllPrimaries, true, 3},
		{route.AllNodes, true, 6},
		{route.RandomNode, false, 1},
		{route.SlotKey("foo"), false, 1},
		{route.SlotIDReplica(100), false, 1},
		{route.ByAddress("10.0.0.2:7001"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			res, err := c.ExecuteRouted(t.Context(), NewCommand("PING"), tt.d)
			require.NoError(t, err)
			require.Equal(t, tt.multi, res.IsMulti())
			if tt.multi {
				require.Len(t, res.Values(), tt.n)
			} else {
				require.Equal(t, "PONG", res.Value())
			}
		})
	}
}

func TestClient_multiPolicyOnSingleNodeIsMulti(t *testing.T) {
	mc := CreateMemoryCluster(t, 1, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	res, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)
	require.True(t, res.IsMulti())
	require.Equal(t, map[string]any{"10.0.0.1:7000": "PONG"}, res.Values())
}

func TestClient_multiKeepsNilValues(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	res, err := c.Execute(t.Context(), NewCommand("GET", "missing"))
	require.NoError(t, err)
	require.Len(t, res.Values(), 3)
	for _, addr := range mc.Primaries() {
		v, ok := res.Values()[addr]
		require.True(t, ok, addr)
		require.Nil(t, v)
	}
}

func TestClient_followsMoved(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)
	require.Equal(t, 1, mc.Queries())

	slot := topology.SlotForKey("foo")
	oldOwner := slotOwner(t, mc, "foo")
	newOwner := otherPrimary(t, mc, oldOwner)
	mc.MoveSlots(slot, slot, newOwner)

	res, err := c.ExecuteRouted(t.Context(), NewCommand("SET", "foo", "bar"), route.SlotKey("foo"))
	require.NoError(t, err)
	require.Equal(t, "OK", res.Value())

	require.Equal(t, 2, mc.Queries())
	require.Equal(t, 2, mc.Sends(newOwner)) // PING + SET
	owner, _ := c.Topology().Current().SlotOwner(slot)
	require.Equal(t, newOwner, owner.Addr)

	res, err = c.ExecuteRouted(t.Context(), NewCommand("GET", "foo"), route.SlotKey("foo"))
	require.NoError(t, err)
	require.Equal(t, "bar", res.Value())
	require.Equal(t, 2, mc.Queries())
}

func TestClient_oneRefreshPerBatch(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	owner := slotOwner(t, mc, "foo")
	_, err := c.ExecuteRouted(t.Context(), NewCommand("SET", "foo", "bar"), route.SlotKey("foo"))
	require.NoError(t, err)
	require.Equal(t, 1, mc.Queries())

	// both non-owners answer MOVED in the same batch
	res, err := c.Execute(t.Context(), NewCommand("GET", "foo"))
	require.NoError(t, err)
	require.Equal(t, 2, mc.Queries())
	require.Len(t, res.Values(), 3)
	for addr, v := range res.Values() {
		require.Equal(t, "bar", v, addr)
	}
	require.Equal(t, 4, mc.Sends(owner)) // SET, GET, and two followed redirects
}

func TestClient_followsAskWithoutRefresh(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	slot := topology.SlotForKey("foo")
	owner := slotOwner(t, mc, "foo")
	importer := otherPrimary(t, mc, owner)
	mc.Migrate(slot, importer)

	res, err := c.ExecuteRouted(t.Context(), NewCommand("SET", "foo", "bar"), route.SlotKey("foo"))
	require.NoError(t, err)
	require.Equal(t, "OK", res.Value())

	require.Equal(t, 1, mc.Queries())
	require.Equal(t, 1, mc.Sends(importer))
	cur, _ := c.Topology().Current().SlotOwner(slot)
	require.Equal(t, owner, cur.Addr)
}

func TestClient_redirectLoop(t *testing.T) {
	for _, maxRedirects := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("max=%d", maxRedirects), func(t *testing.T) {
			mc := CreateMemoryCluster(t, 1, 0)
			mc.Handle("10.0.0.1:7000", func(ctx context.Context, node topology.Node, req Request) (any, error) {
				return nil, &RedirectError{Redirect: Redirect{Kind: RedirectMoved, Slot: 5, Addr: node.Addr}}
			})
			c := CreateTestClient(t, mc, ClientOptions{MaxRedirects: maxRedirects})

			_, err := c.ExecuteRouted(t.Context(), NewCommand("PING"), route.ByAddress("10.0.0.1:7000"))
			require.ErrorIs(t, err, ErrRedirectLoopExceeded)

			e, ok := AsError(err)
			require.True(t, ok)
			require.Equal(t, KindRedirectLoopExceeded, e.Kind)
			require.Len(t, e.Failures, 1)
			require.Equal(t, OutcomeFatal, e.Failures[0].Kind)

			hops := maxRedirects
			if hops == 0 {
				hops = DefaultMaxRedirects
			}
			require.Equal(t, 1+hops, mc.Sends("10.0.0.1:7000"))
		})
	}
}

func TestClient_redirectsDisabled(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{MaxRedirects: -1})

	owner := slotOwner(t, mc, "foo")
	_, err := c.ExecuteRouted(t.Context(), NewCommand("GET", "foo"), route.ByAddress(otherPrimary(t, mc, owner)))
	require.ErrorIs(t, err, ErrRedirectLoopExceeded)
	require.Equal(t, 0, mc.Sends(owner))
}

func TestClient_partialFailure(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	mc.Handle("10.0.0.2:7000", func(context.Context, topology.Node, Request) (any, error) {
		return nil, errors.New("ERR boom")
	})
	c := CreateTestClient(t, mc, ClientOptions{})

	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorContains(t, err, "10.0.0.2:7000: fatal: ERR boom")

	e, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindPartialFailure, e.Kind)
	require.Len(t, e.Failures, 1)
	require.Equal(t, "10.0.0.2:7000", e.Failures[0].Node.Addr)
	require.Equal(t, OutcomeFatal, e.Failures[0].Kind)
	require.Equal(t, map[string]any{"10.0.0.1:7000": "PONG", "10.0.0.3:7000": "PONG"}, e.Values)

	f, ok := e.Failed("10.0.0.2:7000")
	require.True(t, ok)
	require.EqualError(t, f.Err, "ERR boom")
	_, ok = e.Failed("10.0.0.1:7000")
	require.False(t, ok)
}

func TestClient_unavailableNodeIsTransient(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})
	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)

	mc.SetDown("10.0.0.3:7000", true)
	_, err = c.Execute(t.Context(), NewCommand("PING"))
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorIs(t, err, ErrNodeUnavailable)

	e, _ := AsError(err)
	require.Equal(t, OutcomeTransient, e.Failures[0].Kind)
	require.Equal(t, 2, mc.Sends("10.0.0.3:7000")) // transient failures are not retried
}

func TestClient_totalFailure(t *testing.T) {
	mc := CreateMemoryCluster(t, 2, 0)
	c := CreateTestClient(t, mc, ClientOptions{})
	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)

	for _, p := range mc.Primaries() {
		mc.SetDown(p, true)
	}
	_, err = c.Execute(t.Context(), NewCommand("PING"))
	require.ErrorIs(t, err, ErrTotalFailure)
	e, _ := AsError(err)
	require.Len(t, e.Failures, 2)
	require.Empty(t, e.Values)
}

func TestClient_bootstrapFailure(t *testing.T) {
	mc := CreateMemoryCluster(t, 2, 0)
	mc.SetDown("10.0.0.1:7000", true)
	c := CreateTestClient(t, mc, ClientOptions{})

	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.ErrorIs(t, err, ErrTotalFailure)
	require.ErrorIs(t, err, topology.ErrRefreshFailed)
}

func TestClient_refreshFailureIsFatal(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	var fail atomic.Bool
	tm, err := topology.NewMap(topology.MapOptions{
		Initial: mc.Snapshot(),
		Query: topology.QueryFunc(func(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
			if fail.Load() {
				return nil, errors.New("layout unavailable")
			}
			return mc.QueryLayout(ctx, node)
		}),
	})
	require.NoError(t, err)
	c := CreateTestClient(t, mc, ClientOptions{Topology: tm})

	slot := topology.SlotForKey("foo")
	mc.MoveSlots(slot, slot, otherPrimary(t, mc, slotOwner(t, mc, "foo")))
	fail.Store(true)

	_, err = c.ExecuteRouted(t.Context(), NewCommand("GET", "foo"), route.SlotKey("foo"))
	require.ErrorIs(t, err, ErrTotalFailure)
	require.ErrorIs(t, err, topology.ErrRefreshFailed)
}

func TestClient_invalidRoute(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})

	_, err := c.ExecuteRouted(t.Context(), NewCommand("PING"), route.ByAddress("10.9.9.9:7000"))
	require.ErrorIs(t, err, ErrInvalidRoute)
	require.ErrorIs(t, err, route.ErrInvalidRoute)
	e, _ := AsError(err)
	require.Equal(t, KindInvalidRoute, e.Kind)
	require.Empty(t, e.Failures)

	_, err = c.ExecuteRouted(t.Context(), NewCommand("PING"), route.SlotID(topology.NumSlots))
	require.ErrorIs(t, err, ErrInvalidRoute)
}

func TestClient_emptyCommand(t *testing.T) {
	mc := CreateMemoryCluster(t, 1, 0)
	c := CreateTestClient(t, mc, ClientOptions{})
	_, err := c.Execute(t.Context(), nil)
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestClient_nodeTimeout(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	mc.Handle("10.0.0.1:7000", func(ctx context.Context, _ topology.Node, _ Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := CreateTestClient(t, mc, ClientOptions{NodeTimeout: 20 * time.Millisecond})

	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.ErrorIs(t, err, ErrPartialFailure)
	require.ErrorIs(t, err, ErrNodeTimeout)

	e, _ := AsError(err)
	require.Equal(t, OutcomeTransient, e.Failures[0].Kind)
	require.Len(t, e.Values, 2)
}

func TestClient_callerDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	mc := CreateMemoryCluster(t, 3, 0)
	c := CreateTestClient(t, mc, ClientOptions{})
	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)

	// ignores its context entirely
	mc.Handle("10.0.0.2:7000", func(context.Context, topology.Node, Request) (any, error) {
		<-release
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := c.Execute(ctx, NewCommand("PING"))
	require.Less(t, time.Since(start), time.Second)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, res.Values())

	e, _ := AsError(err)
	require.Equal(t, KindTimeout, e.Kind)
}

func TestClient_maxConcurrency(t *testing.T) {
	mc := CreateMemoryCluster(t, 4, 0)

	var inFlight, peak atomic.Int32
	for _, p := range mc.Primaries() {
		mc.Handle(p, func(context.Context, topology.Node, Request) (any, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-time.After(5 * time.Millisecond)
			return "PONG", nil
		})
	}
	c := CreateTestClient(t, mc, ClientOptions{MaxConcurrency: 1})

	res, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)
	require.Len(t, res.Values(), 4)
	require.Equal(t, int32(1), peak.Load())
}

func TestClient_concurrentRedirectsShareOneRefresh(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)

	var (
		queries atomic.Int32
		gate    = make(chan struct{})
	)
	tm, err := topology.NewMap(topology.MapOptions{
		Initial: mc.Snapshot(),
		Query: topology.QueryFunc(func(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
			queries.Add(1)
			<-gate
			return mc.QueryLayout(ctx, node)
		}),
	})
	require.NoError(t, err)
	c := CreateTestClient(t, mc, ClientOptions{Topology: tm})

	slot := topology.SlotForKey("foo")
	owner := slotOwner(t, mc, "foo")
	newOwner := otherPrimary(t, mc, owner)
	mc.MoveSlots(slot, slot, newOwner)

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.ExecuteRouted(t.Context(), NewCommand("GET", "foo"), route.SlotKey("foo"))
		}()
	}

	require.Eventually(t, func() bool { return mc.Sends(owner) == callers }, time.Second, time.Millisecond)
	<-time.After(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), queries.Load())
	require.Equal(t, uint64(2), c.Topology().Current().Epoch())
	require.Equal(t, callers, mc.Sends(newOwner))
}

func TestClient_lateRedirectReusesNewerTopology(t *testing.T) {
	mc := CreateMemoryCluster(t, 3, 0)
	owner := slotOwner(t, mc, "foo")
	newOwner := otherPrimary(t, mc, owner)

	var (
		held    = make(chan struct{})
		release = make(chan struct{})
	)
	c := CreateTestClient(t, mc, ClientOptions{
		Conn: ConnFunc(func(ctx context.Context, node topology.Node, req Request) (any, error) {
			if key, _ := CommandKey(req.Command); key == "{foo}.late" && node.Addr == owner {
				close(held)
				<-release
			}
			return mc.Send(ctx, node, req)
		}),
	})

	_, err := c.Execute(t.Context(), NewCommand("PING"))
	require.NoError(t, err)
	require.Equal(t, 1, mc.Queries())

	slot := topology.SlotForKey("foo")
	mc.MoveSlots(slot, slot, newOwner)

	// sent with epoch 1, answered only after epoch 2 is installed
	lateErr := make(chan error, 1)
	go func() {
		_, err := c.ExecuteRouted(t.Context(), NewCommand("GET", "{foo}.late"), route.SlotKey("{foo}.late"))
		lateErr <- err
	}()
	<-held

	_, err = c.ExecuteRouted(t.Context(), NewCommand("SET", "{foo}.early", "x"), route.SlotKey("{foo}.early"))
	require.NoError(t, err)
	require.Equal(t, 2, mc.Queries())
	require.Equal(t, uint64(2), c.Topology().Current().Epoch())

	close(release)
	require.NoError(t, <-lateErr)

	require.Equal(t, 2, mc.Queries())
	require.Equal(t, uint64(2), c.Topology().Current().Epoch())
	require.Equal(t, 3, mc.Sends(newOwner)) // PING, SET, followed GET
}

func TestClient_callerDeadlineDuringRedirect(t *testing.T) {
	t.Run("redispatch", func(t *testing.T) {
		mc := CreateMemoryCluster(t, 3, 0)
		c := CreateTestClient(t, mc, ClientOptions{})
		_, err := c.Execute(t.Context(), NewCommand("PING"))
		require.NoError(t, err)

		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		slot := topology.SlotForKey("foo")
		owner := slotOwner(t, mc, "foo")
		newOwner := otherPrimary(t, mc, owner)
		mc.Handle(newOwner, func(context.Context, topology.Node, Request) (any, error) {
			<-release
			return "late", nil
		})
		mc.MoveSlots(slot, slot, newOwner)

		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
		defer cancel()

		res, err := c.ExecuteRouted(ctx, NewCommand("GET", "foo"), route.SlotKey("foo"))
		require.ErrorIs(t, err, ErrTimeout)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Nil(t, res.Value())
		require.Nil(t, res.Values())

		// the redirect was followed before the deadline hit
		require.Equal(t, 2, mc.Queries())
		require.Equal(t, 2, mc.Sends(newOwner))
	})

	t.Run("refresh", func(t *testing.T) {
		mc := CreateMemoryCluster(t, 3, 0)

		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		tm, err := topology.NewMap(topology.MapOptions{
			Initial: mc.Snapshot(),
			Query: topology.QueryFunc(func(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
				<-release
				return mc.QueryLayout(ctx, node)
			}),
		})
		require.NoError(t, err)
		c := CreateTestClient(t, mc, ClientOptions{Topology: tm})

		slot := topology.SlotForKey("foo")
		newOwner := otherPrimary(t, mc, slotOwner(t, mc, "foo"))
		mc.MoveSlots(slot, slot, newOwner)

		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
		defer cancel()

		res, err := c.ExecuteRouted(ctx, NewCommand("GET", "foo"), route.SlotKey("foo"))
		require.ErrorIs(t, err, ErrTimeout)
		e, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindTimeout, e.Kind)
		require.Empty(t, e.Values)
		require.Nil(t, res.Value())
		require.Nil(t, res.Values())
		require.Equal(t, 0, mc.Sends(newOwner))
	})
}

func TestNewClient_options(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)

	mc := CreateMemoryCluster(t, 1, 0)
	_, err = NewClient(ClientOptions{Conn: mc})
	require.Error(t, err)

	c := CreateTestClient(t, mc, ClientOptions{MaxRedirects: 1000})
	require.Equal(t, MaxRedirectsLimit, c.maxRedirects)
}
