// Package domain holds the shared value types that flow through the
// signal, risk, order and position pipelines. Nothing here talks to
// storage or the network; these are plain structs and enums.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier for entities that are not
// keyed by a natural key (tx_signature, address).
func NewID() string {
	return uuid.NewString()
}

// ErrConcurrentModification is returned by a store's conditional update
// when the in-store row no longer matches the expected prior state.
var ErrConcurrentModification = errors.New("concurrent modification: row changed since it was loaded")
