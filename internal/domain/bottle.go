package domain

import (
	"fmt"
	"strings"
	"time"
)

// Contribution is one translated gift event.
type Contribution struct {
	Sender string
	Gift   string
	Points int
}

// BottleState is the bounded fill level of one broadcaster.
// Invariant: 0 <= Current <= Capacity.
type BottleState struct {
	Current   int
	Capacity  int
	LastGift  *Contribution
	Connected bool
	UpdatedAt time.Time
}

// BroadcasterConfig is immutable for the duration of one live run.
type BroadcasterConfig struct {
	UniqueID   string
	Capacity   int
	Credential string
}

func (c BroadcasterConfig) Validate() error {
	if strings.TrimSpace(c.UniqueID) == "" {
		return fmt.Errorf("%w: unique id is empty", ErrInvalidConfig)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity %d is negative", ErrInvalidConfig, c.Capacity)
	}
	return nil
}
