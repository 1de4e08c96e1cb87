package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/codewandler/clstr-route/core/cluster"
)

// formatValue renders a reply the way a terminal client would.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "(nil)"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("%q", string(v))
	case int64:
		return fmt.Sprintf("(integer) %d", v)
	case []any:
		if len(v) == 0 {
			return "(empty array)"
		}
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = fmt.Sprintf("%d) %s", i+1, formatValue(e))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(v)
	}
}

func printResult(w io.Writer, res cluster.Result) {
	if !res.IsMulti() {
		fmt.Fprintln(w, formatValue(res.Value()))
		return
	}
	printValues(w, res.Values())
}

func printValues(w io.Writer, values map[string]any) {
	for _, addr := range cluster.Multi(values).Addrs() {
		fmt.Fprintf(w, "%s: %s\n", addr, formatValue(values[addr]))
	}
}

// printError reports a failed command: every failed node, then the replies
// of the nodes that succeeded.
func printError(w io.Writer, err error) {
	e, ok := cluster.AsError(err)
	if !ok || len(e.Failures) == 0 {
		fmt.Fprintf(w, "(error) %v\n", err)
		return
	}
	fmt.Fprintf(w, "(error) %s\n", e.Kind)
	for _, f := range e.Failures {
		fmt.Fprintf(w, "%s: (%s) %v\n", f.Node.Addr, f.Kind, f.Err)
	}
	printValues(w, e.Values)
}
