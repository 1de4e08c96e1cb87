package cluster

import (
	"context"
	"strings"

	"github.com/codewandler/clstr-route/core/topology"
)

// Command is an ordered list of opaque argument tokens, the first usually
// being the command name. The client never modifies a Command.
type Command [][]byte

// NewCommand builds a Command from text tokens.
func NewCommand(args ...string) Command {
	c := make(Command, len(args))
	for i, a := range args {
		c[i] = []byte(a)
	}
	return c
}

// Name returns the upper-cased first token.
func (c Command) Name() string {
	if len(c) == 0 {
		return ""
	}
	return strings.ToUpper(string(c[0]))
}

// Strings returns the tokens as strings.
func (c Command) Strings() []string {
	out := make([]string, len(c))
	for i, a := range c {
		out[i] = string(a)
	}
	return out
}

// Args returns the tokens as a slice suitable for variadic ...any APIs.
func (c Command) Args() []any {
	out := make([]any, len(c))
	for i, a := range c {
		out[i] = a
	}
	return out
}

// Request is what a [Conn] is asked to deliver to one node.
type Request struct {
	Command Command
	// Asking marks a request following an ASK redirect; the node must accept
	// it for a slot it is still importing.
	Asking bool
}

// Conn delivers a request to one node and returns the raw reply. Transport
// level retries are allowed; cluster semantics (redirects) are not
// interpreted here but by the [Classifier].
type Conn interface {
	Send(ctx context.Context, node topology.Node, req Request) (any, error)
}

// ConnFunc adapts a function to [Conn].
type ConnFunc func(ctx context.Context, node topology.Node, req Request) (any, error)

func (f ConnFunc) Send(ctx context.Context, node topology.Node, req Request) (any, error) {
	return f(ctx, node, req)
}
