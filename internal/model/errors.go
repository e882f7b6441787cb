package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPoolState marks on-chain data that cannot be priced (zero reserves, zero price).
	ErrInvalidPoolState = errors.New("invalid pool state")
	// ErrPoolNotFound marks a pool id or address that does not exist.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrTransport marks a failure to reach the endpoint, as opposed to bad data.
	ErrTransport = errors.New("transport failure")
)

// PoolReadError records a failed pool read. It is never retried by the reader.
type PoolReadError struct {
	Pool string
	Op   string
	Err  error
}

func (e *PoolReadError) Error() string {
	return fmt.Sprintf("read pool %s: %s: %v", e.Pool, e.Op, e.Err)
}

func (e *PoolReadError) Unwrap() error {
	return e.Err
}

// TransportError wraps a network failure so callers can tell it apart from data errors.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
