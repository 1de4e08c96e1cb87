package topology

import (
	"encoding/binary"
	"slices"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// AssignSlots spreads all slots over primaries using rendezvous (HRW)
// hashing and returns the result as contiguous ranges, ordered by slot.
// The assignment is deterministic for a given primary set and seed, and
// adding or removing a primary only moves the slots it wins or loses.
func AssignSlots(primaries []string, seed string) []SlotRange {
	if len(primaries) == 0 {
		return nil
	}

	nodes := slices.Clone(primaries)
	slices.Sort(nodes)
	nodes = slices.Compact(nodes)

	var (
		ranges []SlotRange
		cur    *SlotRange
	)
	for slot := 0; slot < NumSlots; slot++ {
		key := []byte("slot:" + strconv.Itoa(slot))

		best := ""
		var bestScore uint64
		for _, n := range nodes {
			score := hrwScore64(key, n, seed)
			if best == "" || score > bestScore {
				best = n
				bestScore = score
			}
		}

		if cur != nil && cur.Primary == best {
			cur.End = slot
			continue
		}
		ranges = append(ranges, SlotRange{Start: slot, End: slot, Primary: best})
		cur = &ranges[len(ranges)-1]
	}
	return ranges
}

func hrwScore64(key []byte, nodeID string, seed string) uint64 {
	h, _ := blake2b.New(8, nil)

	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}

	h.Write(key)
	h.Write([]byte{0})
	h.Write([]byte(nodeID))

	return binary.BigEndian.Uint64(h.Sum(nil))
}
