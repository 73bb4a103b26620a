// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vault

import (
	"errors"
	"sync"
)

// ErrInFlight is returned when a ref is already being produced.
var ErrInFlight = errors.New("artifact already in flight")

// Claims tracks refs that a worker is currently producing so the same
// artifact is never computed twice at once.
type Claims struct {
	mu   sync.Mutex
	held map[Ref]struct{}
}

// NewClaims returns an empty claim set.
func NewClaims() *Claims {
	return &Claims{held: make(map[Ref]struct{})}
}

// Acquire claims ref. It fails with ErrInFlight when ref is already held;
// otherwise the returned func releases the claim.
func (c *Claims) Acquire(ref Ref) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[ref]; ok {
		return nil, ErrInFlight
	}
	c.held[ref] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.held, ref)
		c.mu.Unlock()
	}, nil
}
