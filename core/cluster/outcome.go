package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/codewandler/clstr-route/core/topology"
)

// OutcomeKind tags the result of sending a command to one node.
type OutcomeKind uint8

const (
	OutcomeValue OutcomeKind = iota
	// OutcomeTransient is a failure that may succeed when retried later
	// (timeouts, unreachable nodes, cluster temporarily down).
	OutcomeTransient
	// OutcomeRedirect means the node does not serve the slot; see Redirect.
	OutcomeRedirect
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValue:
		return "value"
	case OutcomeTransient:
		return "transient"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RedirectKind distinguishes permanent (MOVED) from one-shot (ASK)
// redirects.
type RedirectKind uint8

const (
	RedirectMoved RedirectKind = iota
	RedirectAsk
)

func (k RedirectKind) String() string {
	if k == RedirectAsk {
		return "ASK"
	}
	return "MOVED"
}

// Redirect points at the node that should receive the command instead.
// Slot is -1 when the redirect did not name one.
type Redirect struct {
	Kind RedirectKind
	Slot int
	Addr string
}

// Outcome is the settled result of one node: a value, or an error tagged
// with its kind.
type Outcome struct {
	Kind     OutcomeKind
	Value    any
	Err      error
	Redirect Redirect
}

func Value(v any) Outcome { return Outcome{Kind: OutcomeValue, Value: v} }

func Transient(err error) Outcome { return Outcome{Kind: OutcomeTransient, Err: err} }

func Fatal(err error) Outcome { return Outcome{Kind: OutcomeFatal, Err: err} }

func Redirected(r Redirect, err error) Outcome {
	if err == nil {
		err = &RedirectError{Redirect: r}
	}
	return Outcome{Kind: OutcomeRedirect, Err: err, Redirect: r}
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool { return o.Kind != OutcomeValue }

// RedirectError is the error form of a redirect reply, formatted the way
// cluster nodes send it ("MOVED 3999 127.0.0.1:6381").
type RedirectError struct {
	Redirect Redirect
}

func (e *RedirectError) Error() string {
	return e.Redirect.String()
}

// ParseRedirect parses a "MOVED <slot> <addr>" or "ASK <slot> <addr>" error
// message.
func ParseRedirect(msg string) (Redirect, bool) {
	fields := strings.Fields(msg)
	if len(fields) != 3 {
		return Redirect{}, false
	}
	var r Redirect
	switch fields[0] {
	case "MOVED":
		r.Kind = RedirectMoved
	case "ASK":
		r.Kind = RedirectAsk
	default:
		return Redirect{}, false
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil || slot < 0 || slot >= topology.NumSlots {
		return Redirect{}, false
	}
	r.Slot = slot
	r.Addr = fields[2]
	// nodes may announce an empty host (":6380") meaning "the host you asked"
	if strings.HasPrefix(r.Addr, ":") {
		return r, true
	}
	if _, _, err := net.SplitHostPort(r.Addr); err != nil {
		return Redirect{}, false
	}
	return r, true
}

// Classifier maps the raw reply of one node onto an [Outcome].
type Classifier interface {
	Classify(node topology.Node, reply any, err error) Outcome
}

// ClassifierFunc adapts a function to [Classifier].
type ClassifierFunc func(node topology.Node, reply any, err error) Outcome

func (f ClassifierFunc) Classify(node topology.Node, reply any, err error) Outcome {
	return f(node, reply, err)
}

// DefaultClassifier understands the errors produced by this package and by
// the standard library:
//
//   - *RedirectError, or any error whose message parses as a redirect
//   - ErrNodeTimeout, ErrNodeUnavailable, context deadlines and net.Error
//     are transient
//   - everything else is fatal
var DefaultClassifier Classifier = ClassifierFunc(classifyDefault)

func classifyDefault(node topology.Node, reply any, err error) Outcome {
	if err == nil {
		return Value(reply)
	}

	var re *RedirectError
	if errors.As(err, &re) {
		return Redirected(ResolveRedirectAddr(node, re.Redirect), err)
	}
	if r, ok := ParseRedirect(err.Error()); ok {
		return Redirected(ResolveRedirectAddr(node, r), err)
	}

	var ne net.Error
	switch {
	case errors.Is(err, ErrNodeTimeout),
		errors.Is(err, ErrNodeUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &ne):
		return Transient(err)
	}
	return Fatal(err)
}

// ResolveRedirectAddr fills in the host of a redirect that only named a
// port, using the host of the node that sent it.
func ResolveRedirectAddr(from topology.Node, r Redirect) Redirect {
	if strings.HasPrefix(r.Addr, ":") {
		r.Addr = net.JoinHostPort(from.Host(), r.Addr[1:])
	}
	return r
}

func (r Redirect) String() string {
	return fmt.Sprintf("%s %d %s", r.Kind, r.Slot, r.Addr)
}
