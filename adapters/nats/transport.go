package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

var ErrConnClosed = errors.New("nats: conn closed")

type Config struct {
	Connect       Connector    // Connect creates the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix for node subjects, e.g. "clstr" -> clstr.node.<addr>
}

// Conn reaches cluster nodes served by a [NodeServer] through NATS
// request/reply. It implements [cluster.Conn] and [topology.Query].
type Conn struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	closed atomic.Bool
}

func NewConn(cfg Config) (*Conn, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Conn{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("conn", "nats")),
		prefix:  cfg.SubjectPrefix,
	}, nil
}

func (c *Conn) Send(ctx context.Context, node topology.Node, req cluster.Request) (any, error) {
	payload, err := json.Marshal(requestFrame{Args: req.Command, Asking: req.Asking})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var rf responseFrame
	if err := c.request(ctx, subjectNode(c.prefix, node.Addr), node, payload, &rf); err != nil {
		return nil, err
	}
	if err := rf.err(); err != nil {
		return nil, err
	}
	return rf.Value, nil
}

func (c *Conn) QueryLayout(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
	var lf layoutFrame
	if err := c.request(ctx, subjectLayout(c.prefix, node.Addr), node, nil, &lf); err != nil {
		return nil, err
	}
	if lf.Err != "" {
		return nil, fmt.Errorf("nats: layout from %s: %s", node.Addr, lf.Err)
	}
	if lf.Layout == nil {
		return nil, fmt.Errorf("nats: layout from %s: empty reply", node.Addr)
	}
	return topology.NewSnapshot(*lf.Layout)
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return ErrConnClosed
	}
	if err := c.nc.Flush(); err != nil {
		c.log.Warn("flush on close failed", slog.Any("error", err))
	}
	c.closeNc()
	return nil
}

/* ---------------------- internals ---------------------- */

func (c *Conn) request(ctx context.Context, subj string, node topology.Node, payload []byte, out any) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	msg, err := c.nc.RequestWithContext(ctx, subj, payload)
	switch {
	case errors.Is(err, natsgo.ErrNoResponders):
		return fmt.Errorf("%w: %s: %w", cluster.ErrNodeUnavailable, node.Addr, err)
	case err != nil:
		return fmt.Errorf("nats: request %s: %w", subj, err)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ cluster.Conn   = (*Conn)(nil)
	_ topology.Query = (*Conn)(nil)
)
