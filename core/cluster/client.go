package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/clstr-route/core/route"
	"github.com/codewandler/clstr-route/core/topology"
)

const (
	DefaultMaxRedirects = 1
	// MaxRedirectsLimit caps ClientOptions.MaxRedirects.
	MaxRedirectsLimit  = 16
	DefaultNodeTimeout = 5 * time.Second
)

type ClientOptions struct {
	Conn     Conn
	Topology *topology.Map
	// Classifier maps raw replies onto outcomes. Defaults to DefaultClassifier.
	Classifier Classifier
	// Resolver defaults to a resolver using math/rand/v2.
	Resolver *route.Resolver
	// MaxRedirects bounds how many redirect hops a call follows. 0 selects
	// DefaultMaxRedirects, a negative value disables following redirects.
	MaxRedirects int
	// NodeTimeout bounds each per-node request. Defaults to DefaultNodeTimeout.
	NodeTimeout time.Duration
	// MaxConcurrency limits in-flight per-node requests of one call; 0 means
	// unlimited.
	MaxConcurrency int
	Log            *slog.Logger
	Metrics        ClusterMetrics
}

// Client executes commands against a cluster, routing each to the node(s)
// selected by a [route.Directive].
type Client struct {
	log          *slog.Logger
	topo         *topology.Map
	resolver     *route.Resolver
	dispatcher   *dispatcher
	maxRedirects int
	metrics      ClusterMetrics
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("cluster: ClientOptions.Conn is required")
	}
	if opts.Topology == nil {
		return nil, fmt.Errorf("cluster: ClientOptions.Topology is required")
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopClusterMetrics()
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = DefaultClassifier
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = route.NewResolver(nil)
	}
	maxRedirects := opts.MaxRedirects
	switch {
	case maxRedirects == 0:
		maxRedirects = DefaultMaxRedirects
	case maxRedirects < 0:
		maxRedirects = 0
	case maxRedirects > MaxRedirectsLimit:
		maxRedirects = MaxRedirectsLimit
	}
	nodeTimeout := opts.NodeTimeout
	if nodeTimeout <= 0 {
		nodeTimeout = DefaultNodeTimeout
	}

	return &Client{
		log:      log,
		topo:     opts.Topology,
		resolver: resolver,
		dispatcher: &dispatcher{
			conn:        opts.Conn,
			classifier:  classifier,
			nodeTimeout: nodeTimeout,
			limit:       opts.MaxConcurrency,
			metrics:     m,
		},
		maxRedirects: maxRedirects,
		metrics:      m,
	}, nil
}

// Topology returns the topology map the client routes with.
func (c *Client) Topology() *topology.Map { return c.topo }

// Execute runs cmd on all primaries. See [Client.ExecuteRouted].
func (c *Client) Execute(ctx context.Context, cmd Command) (Result, error) {
	return c.ExecuteRouted(ctx, cmd, route.AllPrimaries)
}

// ExecuteRouted sends cmd to the node(s) selected by d and aggregates their
// replies.
//
// A single-node directive that resolves to one node yields a single value;
// multi-node directives yield one value per node, keyed by address. Routing
// and node failures are reported as an *Error: either every targeted node
// replied, or the error names each node that did not and why. ctx bounds the
// whole call, redirects included.
func (c *Client) ExecuteRouted(ctx context.Context, cmd Command, d route.Directive) (res Result, err error) {
	routeKind := d.Kind().String()
	defer c.metrics.CommandDuration(routeKind).ObserveDuration()
	defer func() {
		result := "ok"
		if e, ok := AsError(err); ok {
			result = e.Kind.String()
		} else if err != nil {
			result = "error"
		}
		c.metrics.CommandCompleted(routeKind, result)
	}()

	if len(cmd) == 0 {
		return Result{}, ErrEmptyCommand
	}

	log := c.log.With(
		slog.String("call", gonanoid.Must(8)),
		slog.String("cmd", cmd.Name()),
		slog.String("route", d.String()),
	)

	snap, err := c.snapshot(ctx)
	if err != nil {
		return Result{}, c.fail(ctx, d, KindTotalFailure, err)
	}

	targets, err := c.resolver.Resolve(d, snap)
	switch {
	case errors.Is(err, route.ErrNoNodes):
		return Result{}, c.fail(ctx, d, KindTotalFailure, err)
	case err != nil:
		return Result{}, c.fail(ctx, d, KindInvalidRoute, err)
	}

	outcomes, err := c.settle(ctx, log, cmd, d, snap, targets)
	if err != nil {
		return Result{}, c.fail(ctx, d, KindTotalFailure, err)
	}

	res, err = aggregate(d, targets, outcomes)
	if err != nil {
		log.Debug("call failed", slog.Any("error", err))
	}
	return res, err
}

// snapshot returns the current snapshot, bootstrapping one on first use.
func (c *Client) snapshot(ctx context.Context) (*topology.Snapshot, error) {
	if s := c.topo.Current(); s != nil {
		return s, nil
	}
	return c.topo.Refresh(ctx)
}

// fail builds the *Error for a call that ended without per-node results. A
// call whose context has ended always reports a timeout.
func (c *Client) fail(ctx context.Context, d route.Directive, kind ErrorKind, cause error) error {
	if ctx.Err() != nil {
		kind = KindTimeout
		if !errors.Is(cause, ctx.Err()) {
			cause = fmt.Errorf("%w: %w", ctx.Err(), cause)
		}
	}
	return &Error{Kind: kind, Directive: d, Cause: cause}
}
