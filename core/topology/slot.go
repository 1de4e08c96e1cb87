package topology

import (
	"strings"

	"github.com/sigurn/crc16"
)

// NumSlots is the number of hash slots the keyspace is split into.
const NumSlots = 16384

var xmodem = crc16.MakeTable(crc16.CRC16_XMODEM)

// SlotForKey maps key to its hash slot. If the key contains a non-empty
// "{tag}" section only the tag is hashed, so related keys can be forced onto
// the same slot.
func SlotForKey(key string) int {
	if s := strings.IndexByte(key, '{'); s >= 0 {
		if e := strings.IndexByte(key[s+1:], '}'); e > 0 {
			key = key[s+1 : s+1+e]
		}
	}
	return int(checksum(key) % NumSlots)
}

// checksum is CRC-16/XMODEM (poly 0x1021, init 0).
func checksum(s string) uint16 {
	return crc16.Checksum([]byte(s), xmodem)
}
