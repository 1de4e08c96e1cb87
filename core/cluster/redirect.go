package cluster

import (
	"context"
	"log/slog"

	"github.com/codewandler/clstr-route/core/route"
	"github.com/codewandler/clstr-route/core/topology"
)

// settle dispatches cmd to targets and follows redirects until every target
// has a final outcome or the hop bound is reached.
//
// Each hop re-sends only the targets that redirected. A batch containing at
// least one MOVED triggers at most one topology refresh, none if another
// call already installed a newer snapshot; ASK redirects are
// followed without a refresh. Targets still redirecting after the last hop
// settle as fatal redirect-loop failures.
//
// The returned outcomes are indexed like targets. The error is non-nil only
// when the caller's context ended or the topology refresh failed.
func (c *Client) settle(
	ctx context.Context,
	log *slog.Logger,
	cmd Command,
	d route.Directive,
	snap *topology.Snapshot,
	targets []route.Target,
) ([]Outcome, error) {
	calls := make([]call, len(targets))
	for i, t := range targets {
		calls[i] = call{target: t}
	}

	outcomes, err := c.dispatcher.dispatch(ctx, log, cmd, calls)
	if err != nil {
		return nil, err
	}

	for hop := 0; ; hop++ {
		var pending []int
		moved := false
		for i, o := range outcomes {
			if o.Kind == OutcomeRedirect {
				pending = append(pending, i)
				moved = moved || o.Redirect.Kind == RedirectMoved
			}
		}
		if len(pending) == 0 {
			return outcomes, nil
		}

		if hop >= c.maxRedirects {
			for _, i := range pending {
				log.Warn(
					"redirect loop",
					slog.String("node", calls[i].target.Node.Addr),
					slog.Int("hops", hop),
					slog.Any("error", outcomes[i].Err),
				)
				c.metrics.Redirect("loop")
				outcomes[i] = Fatal(&redirectLoopError{hops: hop, last: outcomes[i].Err})
			}
			return outcomes, nil
		}

		if moved {
			if snap, err = c.topo.RefreshIfStale(ctx, snap.Epoch()); err != nil {
				return nil, err
			}
		}

		retry := make([]call, len(pending))
		for j, i := range pending {
			r := outcomes[i].Redirect
			c.metrics.Redirect(r.Kind.String())
			retry[j] = c.retarget(calls[i], d, r, snap)
			log.Debug(
				"following redirect",
				slog.String("kind", r.Kind.String()),
				slog.Int("slot", r.Slot),
				slog.String("from", calls[i].target.Node.Addr),
				slog.String("to", retry[j].target.Node.Addr),
				slog.Int("hop", hop+1),
			)
		}

		sub, err := c.dispatcher.dispatch(ctx, log, cmd, retry)
		if err != nil {
			return nil, err
		}
		for j, i := range pending {
			calls[i] = retry[j]
			outcomes[i] = sub[j]
		}
	}
}

// retarget picks the node to re-send a redirected call to.
//
// ASK goes to the named node once, flagged as asking. MOVED re-resolves the
// slot against the refreshed snapshot, falling back to the address named by
// the redirect when the snapshot does not (yet) know the new owner.
func (c *Client) retarget(prev call, d route.Directive, r Redirect, snap *topology.Snapshot) call {
	slot := prev.target.Slot
	if slot < 0 {
		slot = r.Slot
	}

	if r.Kind == RedirectAsk {
		return call{target: route.Target{Node: nodeAt(snap, r.Addr), Slot: slot}, asking: true}
	}

	if slot >= 0 {
		if t, err := c.resolver.ResolveSlot(slot, d.SlotType(), snap); err == nil && t.Node.Addr != prev.target.Node.Addr {
			return call{target: t}
		}
	}
	return call{target: route.Target{Node: nodeAt(snap, r.Addr), Slot: slot}}
}

// nodeAt returns the node with addr from snap, assuming a primary when the
// snapshot does not know it.
func nodeAt(snap *topology.Snapshot, addr string) topology.Node {
	if n, ok := snap.Node(addr); ok {
		return n
	}
	return topology.Node{Addr: addr, Role: topology.RolePrimary}
}
