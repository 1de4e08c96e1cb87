package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/clstr-route/core/topology"
)

// NodeHandler serves a request on one in-memory node.
type NodeHandler func(ctx context.Context, node topology.Node, req Request) (any, error)

type MemoryClusterOptions struct {
	// Primaries are the primary addresses; slots are spread over them with
	// topology.AssignSlots.
	Primaries          []string
	ReplicasPerPrimary int
	Seed               string
	// KeyFunc extracts the key a command operates on. Keyed commands sent to
	// a node not serving the key's slot get a MOVED (or ASK) reply.
	// Defaults to CommandKey.
	KeyFunc func(Command) (string, bool)
}

// MemoryCluster simulates a cluster in process. It implements [Conn] and
// [topology.Query], and lets tests move slots, start migrations, take nodes
// down and replace node handlers. Nodes serve a tiny key-value command set
// (PING, ECHO, SET, GET, DEL, DBSIZE) unless a handler is installed.
type MemoryCluster struct {
	mu   sync.RWMutex
	log  *slog.Logger
	name string

	closed bool

	owners    []string            // slot -> primary addr
	primaries []string            // sorted
	replicas  map[string][]string // primary -> replicas
	importing map[int]string      // slot -> addr importing it
	down      map[string]bool
	handlers  map[string]NodeHandler
	data      map[string]map[string]string
	keyFunc   func(Command) (string, bool)

	snap    *topology.Snapshot
	sends   map[string]int
	queries atomic.Int64
}

func NewMemoryCluster(opts MemoryClusterOptions) *MemoryCluster {
	keyFunc := opts.KeyFunc
	if keyFunc == nil {
		keyFunc = CommandKey
	}
	mc := &MemoryCluster{
		log:       slog.New(slog.DiscardHandler),
		name:      "mem-" + gonanoid.Must(6),
		owners:    make([]string, topology.NumSlots),
		replicas:  make(map[string][]string),
		importing: make(map[int]string),
		down:      make(map[string]bool),
		handlers:  make(map[string]NodeHandler),
		data:      make(map[string]map[string]string),
		keyFunc:   keyFunc,
		sends:     make(map[string]int),
	}

	for _, r := range topology.AssignSlots(opts.Primaries, opts.Seed) {
		for slot := r.Start; slot <= r.End; slot++ {
			mc.owners[slot] = r.Primary
		}
	}
	mc.primaries = slices.Sorted(slices.Values(opts.Primaries))
	mc.primaries = slices.Compact(mc.primaries)
	for _, p := range mc.primaries {
		n := topology.Node{Addr: p}
		for i := range opts.ReplicasPerPrimary {
			mc.replicas[p] = append(mc.replicas[p], topology.Addr(n.Host(), n.Port()+1+i))
		}
	}
	return mc
}

func (mc *MemoryCluster) WithLog(log *slog.Logger) *MemoryCluster {
	mc.log = log.With(slog.String("cluster", mc.name))
	return mc
}

// Primaries returns the primary addresses, sorted.
func (mc *MemoryCluster) Primaries() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return slices.Clone(mc.primaries)
}

// Snapshot returns the authoritative layout of the cluster.
func (mc *MemoryCluster) Snapshot() *topology.Snapshot {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.snapshotLocked()
}

// Handle installs h for the node at addr, replacing the built-in commands.
func (mc *MemoryCluster) Handle(addr string, h NodeHandler) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.handlers[addr] = h
}

// SetDown makes the node at addr unreachable (or reachable again).
func (mc *MemoryCluster) SetDown(addr string, down bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.down[addr] = down
}

// MoveSlots reassigns slots [start, end] to the primary at addr, adding it
// as a new primary if needed. Clients holding an older layout get MOVED
// replies for keys in those slots.
func (mc *MemoryCluster) MoveSlots(start, end int, addr string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for slot := start; slot <= end; slot++ {
		mc.owners[slot] = addr
		delete(mc.importing, slot)
	}
	if !slices.Contains(mc.primaries, addr) {
		mc.primaries = append(mc.primaries, addr)
		slices.Sort(mc.primaries)
	}
	mc.snap = nil
	mc.log.Debug("moved slots", slog.Int("start", start), slog.Int("end", end), slog.String("to", addr))
}

// Migrate starts migrating slot to the primary at addr: the owner answers
// ASK, and addr serves the slot only for asking requests. The layout does
// not change until MoveSlots completes the migration.
func (mc *MemoryCluster) Migrate(slot int, addr string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.importing[slot] = addr
}

// Sends returns how many requests the node at addr received.
func (mc *MemoryCluster) Sends(addr string) int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.sends[addr]
}

// Queries returns how many layout queries the cluster answered.
func (mc *MemoryCluster) Queries() int { return int(mc.queries.Load()) }

func (mc *MemoryCluster) Send(ctx context.Context, node topology.Node, req Request) (any, error) {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return nil, ErrClusterClosed
	}
	mc.sends[node.Addr]++

	if mc.down[node.Addr] || !mc.knownLocked(node.Addr) {
		mc.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNodeUnavailable, node.Addr)
	}

	if key, ok := mc.keyFunc(req.Command); ok {
		if err := mc.checkSlotLocked(node.Addr, key, req.Asking); err != nil {
			mc.mu.Unlock()
			mc.log.Debug("redirect", slog.String("node", node.Addr), slog.Any("error", err))
			return nil, err
		}
	}

	h, ok := mc.handlers[node.Addr]
	mc.mu.Unlock()

	if !ok {
		h = mc.serve
	}
	return h(ctx, node, req)
}

func (mc *MemoryCluster) QueryLayout(ctx context.Context, node topology.Node) (*topology.Snapshot, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return nil, ErrClusterClosed
	}
	if mc.down[node.Addr] || !mc.knownLocked(node.Addr) {
		return nil, fmt.Errorf("%w: %s", ErrNodeUnavailable, node.Addr)
	}
	mc.queries.Add(1)
	return mc.snapshotLocked(), nil
}

func (mc *MemoryCluster) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.closed = true
	mc.log.Debug("closed")
	return nil
}

/* ---------------------- internals ---------------------- */

func (mc *MemoryCluster) knownLocked(addr string) bool {
	if slices.Contains(mc.primaries, addr) {
		return true
	}
	for _, rs := range mc.replicas {
		if slices.Contains(rs, addr) {
			return true
		}
	}
	return false
}

func (mc *MemoryCluster) checkSlotLocked(addr, key string, asking bool) error {
	slot := topology.SlotForKey(key)
	owner := mc.owners[slot]
	if owner == "" {
		return fmt.Errorf("CLUSTERDOWN Hash slot not served")
	}

	if target, ok := mc.importing[slot]; ok {
		if addr == owner {
			return &RedirectError{Redirect: Redirect{Kind: RedirectAsk, Slot: slot, Addr: target}}
		}
		if addr == target && asking {
			return nil
		}
	}

	if addr == owner || slices.Contains(mc.replicas[owner], addr) {
		return nil
	}
	return &RedirectError{Redirect: Redirect{Kind: RedirectMoved, Slot: slot, Addr: owner}}
}

func (mc *MemoryCluster) snapshotLocked() *topology.Snapshot {
	if mc.snap != nil {
		return mc.snap
	}

	var (
		layout  topology.Layout
		owning  = map[string]bool{}
		current *topology.SlotRange
	)
	for slot, owner := range mc.owners {
		if owner == "" {
			current = nil
			continue
		}
		if current != nil && current.Primary == owner {
			current.End = slot
			continue
		}
		owning[owner] = true
		layout.Ranges = append(layout.Ranges, topology.SlotRange{
			Start:    slot,
			End:      slot,
			Primary:  owner,
			Replicas: mc.replicas[owner],
		})
		current = &layout.Ranges[len(layout.Ranges)-1]
	}
	for _, p := range mc.primaries {
		if owning[p] {
			continue
		}
		layout.Nodes = append(layout.Nodes, topology.Node{Addr: p, Role: topology.RolePrimary})
		for _, r := range mc.replicas[p] {
			layout.Nodes = append(layout.Nodes, topology.Node{Addr: r, Role: topology.RoleReplica})
		}
	}

	mc.snap = topology.MustSnapshot(layout)
	return mc.snap
}

var memoryArity = map[string]int{"PING": 1, "ECHO": 2, "SET": 3, "GET": 2, "DEL": 2, "DBSIZE": 1}

// serve implements the built-in command set of an in-memory node.
func (mc *MemoryCluster) serve(_ context.Context, node topology.Node, req Request) (any, error) {
	args := req.Command.Strings()
	if len(args) == 0 {
		return nil, fmt.Errorf("ERR empty command")
	}
	name := req.Command.Name()

	want, ok := memoryArity[name]
	if !ok {
		return nil, fmt.Errorf("ERR unknown command '%s'", args[0])
	}
	if len(args) < want {
		return nil, fmt.Errorf("ERR wrong number of arguments for '%s' command", args[0])
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	kv := mc.data[node.Addr]
	if kv == nil {
		kv = make(map[string]string)
		mc.data[node.Addr] = kv
	}

	switch name {
	case "PING":
		if len(args) > 1 {
			return args[1], nil
		}
		return "PONG", nil
	case "ECHO":
		return args[1], nil
	case "SET":
		kv[args[1]] = args[2]
		return "OK", nil
	case "GET":
		v, ok := kv[args[1]]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "DEL":
		var n int64
		for _, k := range args[1:] {
			if _, ok := kv[k]; ok {
				delete(kv, k)
				n++
			}
		}
		return n, nil
	default: // DBSIZE
		return int64(len(kv)), nil
	}
}

// CommandKey returns the key of common single-key commands (the second
// token of GET, SET, DEL, INCR, ...).
func CommandKey(cmd Command) (string, bool) {
	if len(cmd) < 2 {
		return "", false
	}
	switch cmd.Name() {
	case "GET", "SET", "DEL", "INCR", "DECR", "EXISTS", "EXPIRE", "TTL",
		"APPEND", "STRLEN", "HGET", "HSET", "HDEL", "LPUSH", "RPUSH", "SADD":
		return string(cmd[1]), true
	}
	return "", false
}

var (
	_ Conn           = (*MemoryCluster)(nil)
	_ topology.Query = (*MemoryCluster)(nil)
)
