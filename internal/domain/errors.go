package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInactive     = errors.New("account inactive")
	ErrNoSlots      = errors.New("no free position slots")
	ErrStaleMarket  = errors.New("market stale")
	ErrThinBook     = errors.New("insufficient book depth")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
