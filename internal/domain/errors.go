package domain

import "errors"

var (
	ErrDuplicateOrder   = errors.New("duplicate order")
	ErrUnknownOrder     = errors.New("unknown order")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrEngineStopped    = errors.New("engine stopped")
)
