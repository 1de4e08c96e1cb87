package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	goredis "github.com/redis/go-redis/v9"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

var ErrClosed = errors.New("redis: conn closed")

// Conn sends commands to cluster nodes over RESP, keeping one go-redis
// client (with its own connection pool) per node address. It implements
// [cluster.Conn] and [topology.Query].
type Conn struct {
	cfg     Config
	log     *slog.Logger
	clients *xsync.MapOf[string, *goredis.Client]
	closed  atomic.Bool
}

func NewConn(cfg Config) *Conn {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		cfg:     cfg,
		log:     log.With(slog.String("conn", "redis")),
		clients: xsync.NewMapOf[string, *goredis.Client](),
	}
}

// Send executes req on node. Requests following an ASK redirect are
// pipelined behind ASKING on the same connection.
func (c *Conn) Send(ctx context.Context, node topology.Node, req cluster.Request) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	rdb := c.client(node.Addr)

	if !req.Asking {
		return rdb.Do(ctx, req.Command.Args()...).Result()
	}

	var cmd *goredis.Cmd
	_, err := rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Do(ctx, "ASKING")
		cmd = p.Do(ctx, req.Command.Args()...)
		return nil
	})
	if cmd == nil {
		return nil, err
	}
	return cmd.Result()
}

// Close closes every node client.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	var errs []error
	c.clients.Range(func(addr string, rdb *goredis.Client) bool {
		if err := rdb.Close(); err != nil {
			errs = append(errs, err)
		}
		c.clients.Delete(addr)
		return true
	})
	return errors.Join(errs...)
}

func (c *Conn) client(addr string) *goredis.Client {
	rdb, loaded := c.clients.LoadOrCompute(addr, func() *goredis.Client {
		return goredis.NewClient(c.cfg.options(addr))
	})
	if !loaded {
		c.log.Debug("node client created", slog.String("node", addr))
	}
	return rdb
}

var (
	_ cluster.Conn   = (*Conn)(nil)
	_ topology.Query = (*Conn)(nil)
)
