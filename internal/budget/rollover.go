package budget

import (
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// CalculateRolloverAmount returns what carries into the current cycle from the
// previous one: the unspent part of amount plus prior accumulated rollover,
// scaled by RolloverPercentage (default 100) and clamped to RolloverCap.
// Budgets without rollover or with a non-monthly period roll over nothing.
func CalculateRolloverAmount(b *core.Budget, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay int, now time.Time) core.Money {
	if b == nil || !b.RolloverEnabled || b.Period != core.Monthly {
		return core.Money{}
	}

	start, end := CycleOffset(billingCycleDay, now, -1)
	prior := spendIn(b.CategoryID, expenses, repayments, start, end)

	remaining := b.Amount.Cents + b.AccumulatedRollover.Cents - prior.Net.Cents
	if remaining <= 0 {
		return core.Money{}
	}

	pct := int64(100)
	if b.RolloverPercentage != nil {
		pct = int64(*b.RolloverPercentage)
	}
	amount := decimal.NewFromInt(remaining).
		Mul(decimal.NewFromInt(pct)).
		Div(hundred).
		Round(0).
		IntPart()

	if b.RolloverCap != nil && amount > b.RolloverCap.Cents {
		amount = b.RolloverCap.Cents
	}
	return core.Cents(amount)
}

// ApplyRollover returns a copy of b carrying amount as its accumulated
// rollover, stamped with now.
func ApplyRollover(b *core.Budget, amount core.Money, now time.Time) *core.Budget {
	updated := *b
	updated.AccumulatedRollover = amount
	updated.LastRolloverDate = core.DateOf(now)
	return &updated
}

// RolloverDue reports whether no rollover has been applied in the cycle
// containing now.
func RolloverDue(b *core.Budget, billingCycleDay int, now time.Time) bool {
	if b == nil || !b.RolloverEnabled || b.Period != core.Monthly {
		return false
	}
	if b.LastRolloverDate.IsZero() {
		return true
	}
	start, _ := BillingCycle(billingCycleDay, now)
	return b.LastRolloverDate.Before(start)
}

// UsageReport describes spend against a budget's effective amount.
type UsageReport struct {
	Spent      core.Money      `json:"spent"`
	Effective  core.Money      `json:"effective"`
	Remaining  core.Money      `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
	Alert      bool            `json:"alert"`
	Over       bool            `json:"over"`
}

// Usage compares spent with the budget's effective amount. Alert is set once
// the percentage reaches AlertThreshold.
func Usage(b *core.Budget, spent core.Money) UsageReport {
	effective := b.EffectiveAmount()
	r := UsageReport{
		Spent:     spent,
		Effective: effective,
		Remaining: effective.Sub(spent),
	}
	if effective.Cents > 0 {
		r.Percentage = decimal.NewFromInt(spent.Cents).
			Div(decimal.NewFromInt(effective.Cents)).
			Mul(hundred).
			Round(2)
	}
	if b.AlertThreshold > 0 {
		r.Alert = r.Percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(b.AlertThreshold)))
	}
	r.Over = spent.Cents > effective.Cents
	return r
}

// CurrentUsage is Usage over the cycle containing now.
func CurrentUsage(b *core.Budget, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay int, now time.Time) UsageReport {
	start, end := BillingCycle(billingCycleDay, now)
	p := spendIn(b.CategoryID, expenses, repayments, start, end)
	return Usage(b, p.Net)
}
