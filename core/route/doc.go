// Package route resolves routing directives into target nodes.
//
// A [Directive] is the caller's policy for one command: every primary
// ([AllPrimaries]), every node ([AllNodes]), one random primary
// ([RandomNode]), the node serving a key's or an explicit slot ([SlotKey],
// [SlotID] and their replica variants), or one node by address
// ([ByAddress]). A [Resolver] turns a directive into concrete [Target]s using
// a [topology.Snapshot]:
//
//	targets, err := route.NewResolver(nil).Resolve(route.SlotKey("user:{42}"), snap)
//
// Resolution fails with [ErrInvalidRoute] when the directive names something
// the snapshot does not know, and with [ErrNoNodes] when the snapshot has no
// node of the role the directive requires.
package route
