package nats

import (
	"errors"
	"strings"

	"github.com/codewandler/clstr-route/core/cluster"
	"github.com/codewandler/clstr-route/core/topology"
)

// requestFrame carries one command to a node.
type requestFrame struct {
	Args   [][]byte `json:"args"`
	Asking bool     `json:"asking,omitempty"`
}

// responseFrame carries a node reply. Err holds the error text, redirects
// included ("MOVED 3999 10.0.0.2:7000"). Code names the cluster error the
// text stands for, if any.
type responseFrame struct {
	Value any    `json:"value,omitempty"`
	Err   string `json:"err,omitempty"`
	Code  string `json:"code,omitempty"`
}

const (
	codeUnavailable = "unavailable"
	codeNodeTimeout = "node_timeout"
)

var errorCodes = map[string]error{
	codeUnavailable: cluster.ErrNodeUnavailable,
	codeNodeTimeout: cluster.ErrNodeTimeout,
}

func errorFrame(err error) responseFrame {
	rf := responseFrame{Err: err.Error()}
	for code, target := range errorCodes {
		if errors.Is(err, target) {
			rf.Code = code
			break
		}
	}
	return rf
}

// err rebuilds the node error, so classifiers see the same sentinels they
// would see in process.
func (rf responseFrame) err() error {
	if rf.Err == "" {
		return nil
	}
	if target, ok := errorCodes[rf.Code]; ok {
		return &remoteError{msg: rf.Err, target: target}
	}
	return errors.New(rf.Err)
}

type remoteError struct {
	msg    string
	target error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.target }

// layoutFrame answers a layout query.
type layoutFrame struct {
	Layout *topology.Layout `json:"layout,omitempty"`
	Err    string           `json:"err,omitempty"`
}

const defaultPrefix = "clstr"

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func subjectNode(prefix, addr string) string {
	return prefixOrDefault(prefix) + ".node." + subjectToken.Replace(addr)
}

func subjectLayout(prefix, addr string) string {
	return prefixOrDefault(prefix) + ".layout." + subjectToken.Replace(addr)
}

func prefixOrDefault(p string) string {
	if p == "" {
		return defaultPrefix
	}
	return p
}
