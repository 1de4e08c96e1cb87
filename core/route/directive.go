package route

import (
	"fmt"
	"strconv"

	"github.com/codewandler/clstr-route/core/topology"
)

// Kind enumerates the routing policies.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindAllPrimaries
	KindAllNodes
	KindRandomNode
	KindSlotKey
	KindSlotID
	KindByAddress
)

func (k Kind) String() string {
	switch k {
	case KindAllPrimaries:
		return "all_primaries"
	case KindAllNodes:
		return "all_nodes"
	case KindRandomNode:
		return "random_node"
	case KindSlotKey:
		return "slot_key"
	case KindSlotID:
		return "slot_id"
	case KindByAddress:
		return "by_address"
	default:
		return "invalid"
	}
}

// SlotType selects which node serving a slot a slot route targets.
type SlotType uint8

const (
	SlotPrimary SlotType = iota
	// SlotReplica targets a replica of the slot, or its primary if the slot
	// has no replica.
	SlotReplica
)

// Directive describes which node(s) a command is sent to. Directives are
// plain values; the zero Directive is invalid.
type Directive struct {
	kind     Kind
	key      string
	slot     int
	slotType SlotType
	addr     string
}

var (
	// AllPrimaries fans out to every primary.
	AllPrimaries = Directive{kind: KindAllPrimaries}
	// AllNodes fans out to every primary and replica.
	AllNodes = Directive{kind: KindAllNodes}
	// RandomNode sends to one primary chosen uniformly at random.
	RandomNode = Directive{kind: KindRandomNode}
)

// SlotKey routes to the primary owning the slot of key.
func SlotKey(key string) Directive {
	return Directive{kind: KindSlotKey, key: key, slot: topology.SlotForKey(key)}
}

// SlotKeyReplica routes to a replica serving the slot of key.
func SlotKeyReplica(key string) Directive {
	d := SlotKey(key)
	d.slotType = SlotReplica
	return d
}

// SlotID routes to the primary owning slot.
func SlotID(slot int) Directive {
	return Directive{kind: KindSlotID, slot: slot}
}

// SlotIDReplica routes to a replica serving slot.
func SlotIDReplica(slot int) Directive {
	d := SlotID(slot)
	d.slotType = SlotReplica
	return d
}

// ByAddress routes to the node with the given "host:port" address.
func ByAddress(addr string) Directive {
	return Directive{kind: KindByAddress, addr: addr, slot: -1}
}

// ByHostPort is ByAddress with separate host and port.
func ByHostPort(host string, port int) Directive {
	return ByAddress(topology.Addr(host, port))
}

func (d Directive) Kind() Kind { return d.kind }

// Multi reports whether the directive is a multi-node policy. Multi-node
// policies always produce a per-node result, even if they resolve to a single
// node.
func (d Directive) Multi() bool {
	return d.kind == KindAllPrimaries || d.kind == KindAllNodes
}

// Slot returns the slot a slot route targets.
func (d Directive) Slot() (int, bool) {
	if d.kind == KindSlotKey || d.kind == KindSlotID {
		return d.slot, true
	}
	return 0, false
}

func (d Directive) SlotType() SlotType { return d.slotType }

func (d Directive) String() string {
	prefix := ""
	if d.slotType == SlotReplica {
		prefix = "replica-"
	}
	switch d.kind {
	case KindAllPrimaries:
		return "all-primaries"
	case KindAllNodes:
		return "all-nodes"
	case KindRandomNode:
		return "random"
	case KindSlotKey:
		return prefix + "slot-key:" + d.key
	case KindSlotID:
		return prefix + "slot-id:" + strconv.Itoa(d.slot)
	case KindByAddress:
		return "node:" + d.addr
	default:
		return fmt.Sprintf("invalid(%d)", uint8(d.kind))
	}
}
