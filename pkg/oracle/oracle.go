// Package oracle declares the settlement-outcome feed consumed by layers
// above the swap core. The swap and auction engines never consult it: it
// exists so higher settlement logic can resolve outcomes from a pluggable,
// deterministic-given-input collaborator rather than anything random.
package oracle

import (
	"context"
	"fmt"
)

// Outcome is a resolved settlement result with the feed's confidence in it.
type Outcome struct {
	Result     bool
	Confidence uint8 // 0..100
}

type Feed interface {
	// Outcome resolves the named event. Implementations must be deterministic
	// for a given input.
	Outcome(ctx context.Context, eventID string) (Outcome, error)
}

// Static is a fixture feed resolving from a fixed table, used in local daemon
// mode and tests.
type Static map[string]Outcome

func (s Static) Outcome(ctx context.Context, eventID string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	outcome, ok := s[eventID]
	if !ok {
		return Outcome{}, fmt.Errorf("no outcome recorded for event %q", eventID)
	}
	return outcome, nil
}
