package engine

import (
	"fmt"
	"strings"

	"autorsa/internal/domain"
)

// ValidateOrder checks the order's structural invariants. known reports
// whether a broker name is acceptable; a nil known skips that check.
//
// The check is the same at both checkpoints and never looks at sessions, so
// running it again after login is idempotent.
func ValidateOrder(o *domain.Order, cp domain.Checkpoint, known func(string) bool) error {
	fail := func(field, reason string) error {
		return &domain.ValidationError{Checkpoint: cp, Field: field, Reason: reason}
	}

	if o == nil {
		return fail("order", "is missing")
	}
	if o.Holdings {
		return validateBrokers(o, known, fail)
	}
	if !o.Action.Valid() {
		return fail("action", fmt.Sprintf("must be buy or sell, got %q", o.Action))
	}
	if !o.Amount.IsPositive() {
		return fail("amount", fmt.Sprintf("must be greater than 0, got %s", o.Amount.String()))
	}
	if strings.TrimSpace(o.Ticker) == "" {
		return fail("ticker", "must not be empty")
	}
	return validateBrokers(o, known, fail)
}

func validateBrokers(o *domain.Order, known func(string) bool, fail func(field, reason string) error) error {
	if len(o.Brokers) == 0 {
		return fail("brokers", "must name at least one broker")
	}
	if known != nil {
		for _, b := range o.Brokers {
			if !known(b) {
				return fail("brokers", fmt.Sprintf("%q is not a supported broker", b))
			}
		}
	}
	return nil
}
