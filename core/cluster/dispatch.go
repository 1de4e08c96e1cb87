package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codewandler/clstr-route/core/route"
)

// call is one request of a dispatch batch.
type call struct {
	target route.Target
	asking bool
}

type dispatcher struct {
	conn        Conn
	classifier  Classifier
	nodeTimeout time.Duration
	limit       int
	metrics     ClusterMetrics
}

// dispatch sends cmd to every call concurrently and settles each reply into
// an Outcome, in call order. It waits for all calls; a failing node never
// cancels its siblings. The only error returned is ctx's: when the caller's
// context ends first, outstanding requests are abandoned.
func (d *dispatcher) dispatch(ctx context.Context, log *slog.Logger, cmd Command, calls []call) ([]Outcome, error) {
	outcomes := make([]Outcome, len(calls))
	done := make(chan struct{})

	go func() {
		defer close(done)
		var g errgroup.Group
		if d.limit > 0 {
			g.SetLimit(d.limit)
		}
		for i, c := range calls {
			g.Go(func() error {
				outcomes[i] = d.send(ctx, log, cmd, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// every request may have settled just as ctx ended
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (d *dispatcher) send(ctx context.Context, log *slog.Logger, cmd Command, c call) Outcome {
	nctx, cancel := context.WithTimeout(ctx, d.nodeTimeout)
	defer cancel()

	node := c.target.Node
	start := time.Now()
	reply, err := d.conn.Send(nctx, node, Request{Command: cmd, Asking: c.asking})

	var o Outcome
	if err != nil && ctx.Err() == nil && errors.Is(nctx.Err(), context.DeadlineExceeded) {
		o = Transient(fmt.Errorf("%w after %s: %w", ErrNodeTimeout, d.nodeTimeout, err))
	} else {
		o = d.classifier.Classify(node, reply, err)
	}

	d.metrics.NodeOutcome(o.Kind.String())
	log.Debug(
		"node settled",
		slog.Group(
			"node",
			slog.String("addr", node.Addr),
			slog.String("role", node.Role.String()),
		),
		slog.Bool("asking", c.asking),
		slog.String("outcome", o.Kind.String()),
		slog.Duration("took", time.Since(start)),
		slog.Any("error", o.Err),
	)
	return o
}
