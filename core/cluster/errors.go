package cluster

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/codewandler/clstr-route/core/route"
	"github.com/codewandler/clstr-route/core/topology"
)

var (
	// Operation errors; every *Error matches exactly one of these via
	// errors.Is.
	ErrInvalidRoute         = route.ErrInvalidRoute
	ErrPartialFailure       = errors.New("partial failure")
	ErrTotalFailure         = errors.New("total failure")
	ErrTimeout              = errors.New("operation timed out")
	ErrRedirectLoopExceeded = errors.New("redirect loop exceeded")

	// Node errors, carried inside outcomes.
	ErrNodeTimeout     = errors.New("node request timed out")
	ErrNodeUnavailable = errors.New("node unavailable")

	ErrEmptyCommand  = errors.New("empty command")
	ErrClusterClosed = errors.New("cluster closed")
)

// ErrorKind classifies a failed operation.
type ErrorKind uint8

const (
	KindInvalidRoute ErrorKind = iota + 1
	KindPartialFailure
	KindTotalFailure
	KindTimeout
	KindRedirectLoopExceeded
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidRoute:
		return ErrInvalidRoute
	case KindPartialFailure:
		return ErrPartialFailure
	case KindTotalFailure:
		return ErrTotalFailure
	case KindTimeout:
		return ErrTimeout
	case KindRedirectLoopExceeded:
		return ErrRedirectLoopExceeded
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown"
}

// NodeFailure is the final error outcome of one target.
type NodeFailure struct {
	Node topology.Node
	Kind OutcomeKind
	Err  error
}

func (f NodeFailure) String() string {
	return fmt.Sprintf("%s: %s: %v", f.Node.Addr, f.Kind, f.Err)
}

// Error is returned by [Client.ExecuteRouted] for every failed operation.
//
// When nodes failed, Failures lists each of them (sorted by address) and
// Values holds the replies of the nodes that succeeded, keyed by address, so
// no reply is lost. errors.Is matches both the kind sentinel (e.g.
// ErrPartialFailure) and every node cause (e.g. ErrRedirectLoopExceeded).
type Error struct {
	Kind      ErrorKind
	Directive route.Directive
	Failures  []NodeFailure
	Values    map[string]any
	// Cause is set for failures not tied to a node (routing, topology,
	// deadline).
	Cause error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("cluster: ")
	sb.WriteString(e.Kind.String())
	if e.Directive.Kind() != route.KindInvalid {
		sb.WriteString(" [")
		sb.WriteString(e.Directive.String())
		sb.WriteString("]")
	}
	if len(e.Failures) > 0 {
		fmt.Fprintf(&sb, " (%d of %d nodes failed)", len(e.Failures), len(e.Failures)+len(e.Values))
		for _, f := range e.Failures {
			sb.WriteString("; ")
			sb.WriteString(f.String())
		}
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Failed returns the failure of the node with addr, if it failed.
func (e *Error) Failed(addr string) (NodeFailure, bool) {
	i := slices.IndexFunc(e.Failures, func(f NodeFailure) bool { return f.Node.Addr == addr })
	if i < 0 {
		return NodeFailure{}, false
	}
	return e.Failures[i], true
}

// AsError extracts the *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// redirectLoopError replaces the outcome of a node that still redirected
// after the last allowed hop.
type redirectLoopError struct {
	hops int
	last error
}

func (e *redirectLoopError) Error() string {
	return fmt.Sprintf("%s after %d hops: %v", ErrRedirectLoopExceeded, e.hops, e.last)
}

func (e *redirectLoopError) Unwrap() []error { return []error{ErrRedirectLoopExceeded, e.last} }
