package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"autorsa/internal/domain"
)

// RiskManager enforces the pre-trade amount cap. Danger mode lifts it.
type RiskManager struct {
	maxAmount decimal.Decimal
	danger    bool
}

// NewRiskManager creates a RiskManager.
//
//   - maxAmount: largest amount accepted per order; zero disables the cap.
//   - danger: when true no cap is applied.
func NewRiskManager(maxAmount decimal.Decimal, danger bool) *RiskManager {
	return &RiskManager{
		maxAmount: maxAmount,
		danger:    danger,
	}
}

// CheckOrder rejects orders above the cap with a *domain.ValidationError.
func (rm *RiskManager) CheckOrder(_ context.Context, o *domain.Order) error {
	if rm == nil || rm.danger || !rm.maxAmount.IsPositive() {
		return nil
	}
	if o.Amount.GreaterThan(rm.maxAmount) {
		return &domain.ValidationError{
			Checkpoint: domain.PreLogin,
			Field:      "amount",
			Reason: fmt.Sprintf("%s exceeds the limit of %s (enable danger mode to override)",
				o.Amount.String(), rm.maxAmount.String()),
		}
	}
	return nil
}
