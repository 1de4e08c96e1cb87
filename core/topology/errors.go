package topology

import "errors"

var (
	ErrInvalidLayout = errors.New("invalid cluster layout")
	ErrNoTopology    = errors.New("no topology source")
	ErrRefreshFailed = errors.New("topology refresh failed")
)
