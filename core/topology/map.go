package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-route/core/sf"
)

const refreshKey = "refresh"

// Query fetches the cluster layout as seen by node.
type Query interface {
	QueryLayout(ctx context.Context, node Node) (*Snapshot, error)
}

// QueryFunc adapts a function to [Query].
type QueryFunc func(ctx context.Context, node Node) (*Snapshot, error)

func (f QueryFunc) QueryLayout(ctx context.Context, node Node) (*Snapshot, error) {
	return f(ctx, node)
}

type MapOptions struct {
	Query Query
	// Seeds are addresses queried when no snapshot is installed yet, and as a
	// last resort when none of the known nodes answers.
	Seeds []string
	// Initial is installed right away if set.
	Initial *Snapshot
	// RefreshTimeout bounds a single refresh, across all candidates.
	// Defaults to 10s.
	RefreshTimeout time.Duration
	Log            *slog.Logger
	Metrics        Metrics
}

// Map holds the current [Snapshot] of one client.
//
// Readers call [Map.Current] and never block. [Map.Refresh] replaces the
// snapshot wholesale by swapping a pointer; concurrent refreshes share a
// single in-flight layout query.
type Map struct {
	log            *slog.Logger
	query          Query
	seeds          []string
	refreshTimeout time.Duration
	metrics        Metrics

	current atomic.Pointer[Snapshot]
	epoch   atomic.Uint64
	flight  *sf.Singleflight[Snapshot]
}

func NewMap(opts MapOptions) (*Map, error) {
	if opts.Query == nil {
		return nil, fmt.Errorf("topology: MapOptions.Query is required")
	}
	if opts.Initial == nil && len(opts.Seeds) == 0 {
		return nil, fmt.Errorf("topology: MapOptions.Seeds or MapOptions.Initial is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopMetrics()
	}
	timeout := opts.RefreshTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tm := &Map{
		log:            log.With(slog.String("component", "topology")),
		query:          opts.Query,
		seeds:          opts.Seeds,
		refreshTimeout: timeout,
		metrics:        m,
		flight:         sf.New[Snapshot](),
	}
	if opts.Initial != nil {
		tm.Install(opts.Initial)
	}
	return tm, nil
}

// Current returns the most recently installed snapshot, or nil if none has
// been installed yet.
func (m *Map) Current() *Snapshot { return m.current.Load() }

// Install publishes s as the current snapshot and returns the installed copy,
// stamped with the next epoch.
func (m *Map) Install(s *Snapshot) *Snapshot {
	installed := s.withEpoch(m.epoch.Add(1))
	m.current.Store(installed)
	m.metrics.SnapshotInstalled(installed.Epoch(), installed.Len())
	m.log.Info(
		"installed topology",
		slog.Uint64("epoch", installed.Epoch()),
		slog.Int("primaries", len(installed.primaries)),
		slog.Int("replicas", len(installed.replicas)),
	)
	return installed
}

// Refresh queries the cluster for its layout and installs the result.
//
// If a refresh is already running the caller joins it and receives the same
// snapshot. The query itself runs detached from ctx (bounded by
// RefreshTimeout) so one caller giving up does not fail the others; ctx only
// bounds how long this caller waits.
func (m *Map) Refresh(ctx context.Context) (*Snapshot, error) {
	return m.refresh(ctx, math.MaxUint64)
}

// RefreshIfStale is like Refresh for a caller that found the snapshot with
// the given epoch out of date. If a newer snapshot has been installed since,
// it is returned without querying the cluster.
func (m *Map) RefreshIfStale(ctx context.Context, epoch uint64) (*Snapshot, error) {
	if cur := m.newerThan(epoch); cur != nil {
		return cur, nil
	}
	return m.refresh(ctx, epoch)
}

func (m *Map) refresh(ctx context.Context, stale uint64) (*Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	snap, shared, err := m.flight.DoContext(ctx, refreshKey, func() (*Snapshot, error) {
		// a refresh may have completed between the caller's check and now
		if cur := m.newerThan(stale); cur != nil {
			return cur, nil
		}
		qctx, cancel := context.WithTimeout(detached, m.refreshTimeout)
		defer cancel()
		return m.doRefresh(qctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("joined in-flight refresh", slog.Uint64("epoch", snap.Epoch()))
	}
	return snap, nil
}

func (m *Map) newerThan(epoch uint64) *Snapshot {
	if cur := m.Current(); cur != nil && cur.Epoch() > epoch {
		m.log.Debug("topology already refreshed", slog.Uint64("stale", epoch), slog.Uint64("epoch", cur.Epoch()))
		return cur
	}
	return nil
}

func (m *Map) doRefresh(ctx context.Context) (snap *Snapshot, err error) {
	defer m.metrics.RefreshDuration().ObserveDuration()
	defer func() { m.metrics.RefreshCompleted(err == nil) }()

	candidates := m.candidates()
	if len(candidates) == 0 {
		return nil, ErrNoTopology
	}

	var errs []error
	for _, n := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		s, qerr := m.query.QueryLayout(ctx, n)
		if qerr == nil && s != nil && s.Len() > 0 {
			return m.Install(s), nil
		}
		if qerr == nil {
			qerr = fmt.Errorf("empty layout")
		}
		m.log.Warn("layout query failed", slog.String("node", n.Addr), slog.Any("error", qerr))
		errs = append(errs, fmt.Errorf("%s: %w", n.Addr, qerr))
	}

	err = fmt.Errorf("%w: %w", ErrRefreshFailed, errors.Join(errs...))
	m.log.Error("topology refresh failed", slog.Int("candidates", len(candidates)), slog.Any("error", err))
	return nil, err
}

// candidates lists nodes to ask for the layout: known primaries, then known
// replicas, then seeds not already covered.
func (m *Map) candidates() []Node {
	var out []Node
	seen := map[string]struct{}{}
	if cur := m.Current(); cur != nil {
		for _, n := range cur.Nodes() {
			if n.IsPrimary() {
				out = append(out, n)
				seen[n.Addr] = struct{}{}
			}
		}
		for _, n := range cur.Nodes() {
			if !n.IsPrimary() {
				out = append(out, n)
				seen[n.Addr] = struct{}{}
			}
		}
	}
	for _, addr := range m.seeds {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, Node{Addr: addr, Role: RolePrimary})
	}
	return out
}
