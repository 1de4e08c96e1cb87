package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

type NodeServerConfig struct {
	Connect       Connector
	Log           *slog.Logger
	SubjectPrefix string
	// Node is the identity this server answers for.
	Node topology.Node
	// Handler serves commands. Required.
	Handler cluster.NodeHandler
	// Layout answers layout queries. Optional; without it the node does not
	// answer layout queries.
	Layout func(ctx context.Context, node topology.Node) (*topology.Snapshot, error)
}

// NodeServer exposes one cluster node on NATS, answering the requests a
// [Conn] sends to it.
type NodeServer struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	node    topology.Node
	handler cluster.NodeHandler
	layout  func(ctx context.Context, node topology.Node) (*topology.Snapshot, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*natsgo.Subscription

	closed atomic.Bool
}

func NewNodeServer(cfg NodeServerConfig) (*NodeServer, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("nats: NodeServerConfig.Handler is required")
	}
	if cfg.Node.Addr == "" {
		return nil, fmt.Errorf("nats: NodeServerConfig.Node is required")
	}
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

	ctx, cancel := context.WithCancel(context.Background())
	s := &NodeServer{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("server", "nats"), slog.String("node", cfg.Node.Addr)),
		node:    cfg.Node,
		handler: cfg.Handler,
		layout:  cfg.Layout,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.subscribe(subjectNode(cfg.SubjectPrefix, cfg.Node.Addr), s.serveCommand); err != nil {
		_ = s.Close()
		return nil, err
	}
	if cfg.Layout != nil {
		if err := s.subscribe(subjectLayout(cfg.SubjectPrefix, cfg.Node.Addr), s.serveLayout); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	// make sure the subscriptions reached the server before anyone asks
	if err := nc.Flush(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("nats: flush: %w", err)
	}
	s.log.Debug("serving")
	return s, nil
}

func (s *NodeServer) Close() error {
	if s.closed.Swap(true) {
		return ErrConnClosed
	}
	s.cancel()
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()
	s.closeNc()
	return nil
}

/* ---------------------- internals ---------------------- */

func (s *NodeServer) subscribe(subj string, h natsgo.MsgHandler) error {
	sub, err := s.nc.Subscribe(subj, h)
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", subj, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

func (s *NodeServer) serveCommand(msg *natsgo.Msg) {
	var req requestFrame
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Error("failed to decode request", slog.Any("error", err))
		s.respond(msg, responseFrame{Err: fmt.Sprintf("ERR bad request: %s", err)})
		return
	}
	if len(req.Args) == 0 {
		s.respond(msg, responseFrame{Err: "ERR empty command"})
		return
	}

	v, err := s.handler(s.ctx, s.node, cluster.Request{Command: req.Args, Asking: req.Asking})
	rf := responseFrame{Value: v}
	if err != nil {
		rf = errorFrame(err)
	}
	s.respond(msg, rf)
}

func (s *NodeServer) serveLayout(msg *natsgo.Msg) {
	snap, err := s.layout(s.ctx, s.node)
	if err != nil {
		s.log.Warn("layout unavailable", slog.Any("error", err))
		s.respond(msg, layoutFrame{Err: err.Error()})
		return
	}
	layout := snap.Layout()
	s.respond(msg, layoutFrame{Layout: &layout})
}

func (s *NodeServer) respond(msg *natsgo.Msg, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to encode response", slog.Any("error", err))
		return
	}
	if err := msg.Respond(b); err != nil && !errors.Is(err, natsgo.ErrMsgNoReply) {
		s.log.Error("failed to publish reply", slog.Any("error", err))
	}
}
