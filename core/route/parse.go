package route

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads a directive in the format produced by [Directive.String]:
//
//	all-primaries | all-nodes | random
//	slot-key:<key> | replica-slot-key:<key>
//	slot-id:<n>    | replica-slot-id:<n>
//	node:<host>:<port>
func Parse(s string) (Directive, error) {
	switch s {
	case "all-primaries", "":
		return AllPrimaries, nil
	case "all-nodes":
		return AllNodes, nil
	case "random":
		return RandomNode, nil
	}

	kind, arg, ok := strings.Cut(s, ":")
	if !ok || arg == "" {
		return Directive{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidRoute, s)
	}

	switch kind {
	case "slot-key":
		return SlotKey(arg), nil
	case "replica-slot-key":
		return SlotKeyReplica(arg), nil
	case "slot-id", "replica-slot-id":
		id, err := strconv.Atoi(arg)
		if err != nil {
			return Directive{}, fmt.Errorf("%w: bad slot id %q", ErrInvalidRoute, arg)
		}
		if kind == "replica-slot-id" {
			return SlotIDReplica(id), nil
		}
		return SlotID(id), nil
	case "node":
		if !strings.Contains(arg, ":") {
			return Directive{}, fmt.Errorf("%w: node address %q needs host:port", ErrInvalidRoute, arg)
		}
		return ByAddress(arg), nil
	default:
		return Directive{}, fmt.Errorf("%w: unknown route %q", ErrInvalidRoute, kind)
	}
}
