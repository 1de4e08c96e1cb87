// Package cluster dispatches commands to the nodes of a slot-partitioned
// key-value cluster and aggregates their replies.
//
// # Architecture
//
// A call flows through four stages:
//
//   - Routing: a [route.Directive] is resolved against the current
//     [topology.Snapshot] into one or more targets.
//   - Dispatch: the command is sent to every target concurrently through a
//     [Conn]. Each reply is turned into an [Outcome] by a [Classifier].
//   - Redirection: targets answering MOVED or ASK are re-sent to the node
//     they name, up to a bounded number of hops. A batch containing a MOVED
//     refreshes the topology once.
//   - Aggregation: the outcomes become a [Result], or an [*Error] naming
//     every node that failed.
//
// # Client Usage
//
//	tm, _ := topology.NewMap(topology.MapOptions{
//	    Query: query,
//	    Seeds: []string{"10.0.0.1:7000"},
//	})
//	client, _ := cluster.NewClient(cluster.ClientOptions{
//	    Conn:     conn,
//	    Topology: tm,
//	})
//
//	// one reply per primary
//	res, err := client.Execute(ctx, cluster.NewCommand("PING"))
//
//	// one reply from the owner of "user:1"
//	res, err = client.ExecuteRouted(ctx, cluster.NewCommand("GET", "user:1"), route.SlotKey("user:1"))
//
// # Errors
//
// Every failed call returns an [*Error]. errors.Is matches its kind
// ([ErrInvalidRoute], [ErrPartialFailure], [ErrTotalFailure], [ErrTimeout],
// [ErrRedirectLoopExceeded]) as well as the causes of each failed node. On a
// partial failure the replies of the healthy nodes are in [Error.Values].
//
// # Testing
//
// [MemoryCluster] simulates a cluster in process, including slot moves,
// migrations and unreachable nodes. [CreateMemoryCluster] and
// [CreateTestClient] wire one up for tests.
package cluster
