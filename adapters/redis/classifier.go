package redis

import (
	"errors"
	"io"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

// Classifier maps go-redis replies onto outcomes.
//
// MOVED and ASK replies are redirects. TRYAGAIN, CLUSTERDOWN, LOADING,
// MASTERDOWN and BUSY are transient, as are broken connections. Other server
// errors are fatal. A nil reply (redis.Nil) is a value.
var Classifier cluster.Classifier = cluster.ClassifierFunc(classify)

func classify(node topology.Node, reply any, err error) cluster.Outcome {
	if err == nil {
		return cluster.Value(reply)
	}
	if errors.Is(err, goredis.Nil) {
		return cluster.Value(nil)
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		if r, ok := cluster.ParseRedirect(msg); ok {
			return cluster.Redirected(cluster.ResolveRedirectAddr(node, r), err)
		}
		code, _, _ := strings.Cut(msg, " ")
		switch code {
		case "TRYAGAIN", "CLUSTERDOWN", "LOADING", "MASTERDOWN", "BUSY":
			return cluster.Transient(err)
		}
		return cluster.Fatal(err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return cluster.Transient(err)
	}
	return cluster.DefaultClassifier.Classify(node, reply, err)
}
