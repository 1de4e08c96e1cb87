package redis

import (
	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

// NewClusterClient wires a Conn built from cfg into a topology map and a
// cluster client. mopts.Seeds must name at least one node. Unset
// collaborators (query, conn, classifier, topology) default to the redis
// ones. The caller closes the returned Conn.
func NewClusterClient(cfg Config, mopts topology.MapOptions, copts cluster.ClientOptions) (*cluster.Client, *Conn, error) {
	conn := NewConn(cfg)

	if mopts.Query == nil {
		mopts.Query = conn
	}
	if mopts.Log == nil {
		mopts.Log = cfg.Log
	}
	if copts.Topology == nil {
		tm, err := topology.NewMap(mopts)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		copts.Topology = tm
	}
	if copts.Conn == nil {
		copts.Conn = conn
	}
	if copts.Classifier == nil {
		copts.Classifier = Classifier
	}
	if copts.Log == nil {
		copts.Log = cfg.Log
	}

	c, err := cluster.NewClient(copts)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return c, conn, nil
}
