package topology

import (
	"fmt"
	"net"
	"strconv"
)

// Role is the replication role of a node.
type Role uint8

const (
	RolePrimary Role = iota
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "primary", "master":
		*r = RolePrimary
	case "replica", "slave":
		*r = RoleReplica
	default:
		return fmt.Errorf("topology: unknown role %q", string(b))
	}
	return nil
}

// Node identifies a cluster node. Addr is "host:port" and is unique within a
// snapshot.
type Node struct {
	Addr string `json:"addr"`
	Role Role   `json:"role"`
}

func (n Node) String() string { return n.Addr + "/" + n.Role.String() }

func (n Node) IsPrimary() bool { return n.Role == RolePrimary }

// Host returns the host part of Addr, or Addr itself if it has no port.
func (n Node) Host() string {
	host, _, err := net.SplitHostPort(n.Addr)
	if err != nil {
		return n.Addr
	}
	return host
}

// Port returns the port part of Addr, or 0 if it has none.
func (n Node) Port() int {
	_, port, err := net.SplitHostPort(n.Addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// Addr joins host and port into the address format used by Node.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
