// Package budget computes spending history, budget suggestions and rollover
// amounts. Everything here is a pure function of its inputs.
package budget

import (
	"time"

	"fintrack/internal/core"
)

// Period is one billing cycle window, [Start, End).
type Period struct {
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Gross  core.Money `json:"gross"`
	Repaid core.Money `json:"repaid"`
	Net    core.Money `json:"net"`
}

// Contains reports whether d falls inside the window.
func (p Period) Contains(d core.Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// normalizeAnchor maps out-of-range anchors to day 1 (calendar months).
func normalizeAnchor(anchor int) int {
	if anchor < 1 || anchor > 31 {
		return 1
	}
	return anchor
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// cycleStart is the anchor day in year/month, clamped to the month's last day.
func cycleStart(anchor, year int, month time.Month) time.Time {
	day := anchor
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// BillingCycle returns the cycle containing ref. Cycles start on anchorDay of
// each month; months too short for the anchor start on their last day.
func BillingCycle(anchorDay int, ref time.Time) (start, end time.Time) {
	anchor := normalizeAnchor(anchorDay)
	day := core.DateOf(ref).Time

	start = cycleStart(anchor, day.Year(), day.Month())
	if day.Before(start) {
		y, m := addMonths(day.Year(), day.Month(), -1)
		start = cycleStart(anchor, y, m)
	}
	y, m := addMonths(start.Year(), start.Month(), 1)
	return start, cycleStart(anchor, y, m)
}

// CycleOffset returns the cycle offset cycles away from the one containing
// ref. Negative offsets are in the past.
func CycleOffset(anchorDay int, ref time.Time, offset int) (start, end time.Time) {
	anchor := normalizeAnchor(anchorDay)
	current, _ := BillingCycle(anchor, ref)
	y, m := addMonths(current.Year(), current.Month(), offset)
	start = cycleStart(anchor, y, m)
	ny, nm := addMonths(y, m, 1)
	return start, cycleStart(anchor, ny, nm)
}

// SpendingHistory returns the net spend of categoryID in each of the last
// months cycles, oldest first, ending with the cycle containing now. Cycles
// without expenses are reported with zero spend. Net spend is gross expense
// minus repayments against the category in the same window, floored at zero.
func SpendingHistory(categoryID string, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay, months int, now time.Time) []Period {
	if months <= 0 {
		return []Period{}
	}
	history := make([]Period, 0, months)
	for offset := -(months - 1); offset <= 0; offset++ {
		start, end := CycleOffset(billingCycleDay, now, offset)
		history = append(history, spendIn(categoryID, expenses, repayments, start, end))
	}
	return history
}

// completedHistory is SpendingHistory over the months cycles before the
// current one.
func completedHistory(categoryID string, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay, months int, now time.Time) []Period {
	h := SpendingHistory(categoryID, expenses, repayments, billingCycleDay, months+1, now)
	return h[:len(h)-1]
}

func spendIn(categoryID string, expenses []*core.Expense, repayments []*core.Repayment, start, end time.Time) Period {
	p := Period{Start: start, End: end}
	for _, e := range expenses {
		if e.CategoryID == categoryID && p.Contains(e.Date) {
			p.Gross.Cents += e.Amount.Cents
		}
	}
	for _, r := range repayments {
		if r.CategoryID == categoryID && p.Contains(r.Date) {
			p.Repaid.Cents += r.Amount.Cents
		}
	}
	p.Net.Cents = max(0, p.Gross.Cents-p.Repaid.Cents)
	return p
}

// firstExpense returns the date of the earliest expense in categoryID.
func firstExpense(categoryID string, expenses []*core.Expense) (time.Time, bool) {
	var first time.Time
	found := false
	for _, e := range expenses {
		if e.CategoryID != categoryID {
			continue
		}
		if !found || e.Date.Before(first) {
			first = e.Date.Time
			found = true
		}
	}
	return first, found
}
