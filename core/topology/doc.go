// Package topology tracks which node owns which hash slot.
//
// A [Snapshot] is an immutable picture of the cluster: every slot mapped to
// its owning primary, plus the set of known primaries and replicas. The
// [Map] owns the current snapshot of one client and replaces it wholesale on
// [Map.Refresh]; readers obtained from [Map.Current] therefore always see a
// complete, consistent view and never need a lock.
//
// Keys are mapped to slots with [SlotForKey] (CRC16 modulo [NumSlots], with
// "{tag}" support). [AssignSlots] derives a deterministic slot layout from a
// list of primaries using rendezvous hashing, which is how in-memory and test
// clusters are laid out.
package topology
