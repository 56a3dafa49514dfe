package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
	ErrSuperseded   = errors.New("superseded by a newer scan")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
