package sf

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Singleflight collapses concurrent calls sharing a key into one execution.
// Joiners receive the leader's result.
type Singleflight[T any] struct {
	group singleflight.Group
}

// Do executes fn for key unless a call for key is already running, in which
// case it waits for that call and returns its result. shared reports whether
// the result was delivered to more than one caller.
func (s *Singleflight[T]) Do(key string, fn func() (*T, error)) (v *T, shared bool, err error) {
	out, err, shared := s.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return out.(*T), shared, nil
}

// DoContext is like Do, but stops waiting once ctx is done. The in-flight
// call keeps running for the remaining callers; fn must therefore not depend
// on the ctx of any single caller.
func (s *Singleflight[T]) DoContext(ctx context.Context, key string, fn func() (*T, error)) (*T, bool, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*T), res.Shared, nil
	}
}

// New creates a Singleflight for T.
func New[T any]() *Singleflight[T] {
	return &Singleflight[T]{}
}
