package cluster

import (
	"errors"
	"slices"
	"strings"

	"github.com/codewandler/clstr-route/core/route"
)

// aggregate folds the final outcomes of targets into a Result.
//
// multi forces a per-node result even for one target. Any failed target turns
// the whole operation into an *Error listing every failure, with the
// successful replies attached.
func aggregate(d route.Directive, targets []route.Target, outcomes []Outcome) (Result, error) {
	values := make(map[string]any, len(targets))
	var failures []NodeFailure
	for i, t := range targets {
		o := outcomes[i]
		if o.Failed() {
			failures = append(failures, NodeFailure{Node: t.Node, Kind: o.Kind, Err: o.Err})
			continue
		}
		values[t.Node.Addr] = o.Value
	}

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b NodeFailure) int { return strings.Compare(a.Node.Addr, b.Node.Addr) })
		return Result{}, &Error{
			Kind:      failureKind(len(values), failures),
			Directive: d,
			Failures:  failures,
			Values:    values,
		}
	}

	if !d.Multi() && len(targets) == 1 {
		return Single(values[targets[0].Node.Addr]), nil
	}
	return Multi(values), nil
}

func failureKind(succeeded int, failures []NodeFailure) ErrorKind {
	if succeeded > 0 {
		return KindPartialFailure
	}
	for _, f := range failures {
		if !errors.Is(f.Err, ErrRedirectLoopExceeded) {
			return KindTotalFailure
		}
	}
	return KindRedirectLoopExceeded
}
