package budget

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

var now = time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)

func exp(cat string, y, m, d int, cents int64) *core.Expense {
	return &core.Expense{Date: core.NewDate(y, m, d), Description: "x", Amount: core.Cents(cents), CategoryID: cat}
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestBillingCycle(t *testing.T) {
	cases := []struct {
		name       string
		anchor     int
		ref        time.Time
		start, end time.Time
	}{
		{"calendar month", 1, day(2025, 3, 10), day(2025, 3, 1), day(2025, 4, 1)},
		{"before anchor", 15, day(2025, 3, 10), day(2025, 2, 15), day(2025, 3, 15)},
		{"on anchor", 15, day(2025, 3, 15), day(2025, 3, 15), day(2025, 4, 15)},
		{"short month clamps", 31, day(2025, 2, 28), day(2025, 2, 28), day(2025, 3, 31)},
		{"before clamped anchor", 31, day(2025, 2, 27), day(2025, 1, 31), day(2025, 2, 28)},
		{"year boundary", 20, day(2025, 1, 5), day(2024, 12, 20), day(2025, 1, 20)},
		{"invalid anchor", 0, day(2025, 3, 10), day(2025, 3, 1), day(2025, 4, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := BillingCycle(tc.anchor, tc.ref)
			if !start.Equal(tc.start) || !end.Equal(tc.end) {
				t.Fatalf("got [%s, %s), want [%s, %s)", start.Format("2006-01-02"), end.Format("2006-01-02"),
					tc.start.Format("2006-01-02"), tc.end.Format("2006-01-02"))
			}
		})
	}
}

func TestSpendingHistoryLengthAndOrder(t *testing.T) {
	expenses := []*core.Expense{
		exp("food", 2025, 3, 2, 4000),
		exp("food", 2025, 3, 20, 1000),
		exp("food", 2025, 5, 1, 700),
		exp("rent", 2025, 3, 1, 90000),
	}
	repayments := []*core.Repayment{
		{Date: core.NewDate(2025, 3, 25), CategoryID: "food", Amount: core.Cents(1500)},
		{Date: core.NewDate(2025, 5, 2), CategoryID: "food", Amount: core.Cents(5000)},
	}

	h := SpendingHistory("food", expenses, repayments, 1, 4, now)
	if len(h) != 4 {
		t.Fatalf("expected 4 periods, got %d", len(h))
	}
	if !h[0].Start.Equal(day(2025, 2, 1)) || !h[3].Start.Equal(day(2025, 5, 1)) {
		t.Fatalf("expected Feb..May oldest first, got %s..%s", h[0].Start, h[3].Start)
	}
	want := []int64{0, 3500, 0, 0}
	for i, p := range h {
		if p.Net.Cents != want[i] {
			t.Errorf("period %d: net %d, want %d", i, p.Net.Cents, want[i])
		}
	}
	if h[2].Gross.Cents != 0 || h[3].Gross.Cents != 700 || h[3].Repaid.Cents != 5000 {
		t.Fatalf("unexpected gross/repaid %+v", h[3])
	}
	if got := SpendingHistory("food", nil, nil, 1, 0, now); len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestAnalyzeBudgetConsistentlyOver(t *testing.T) {
	expenses := []*core.Expense{
		exp("food", 2025, 2, 10, 12000),
		exp("food", 2025, 3, 10, 12500),
		exp("food", 2025, 4, 10, 13000),
	}
	b := &core.Budget{ID: "b1", CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly}

	s := AnalyzeBudget(b, expenses, nil, 1, now)
	if s == nil {
		t.Fatal("expected a suggestion")
	}
	if s.Reason != ReasonConsistentlyOver {
		t.Fatalf("expected consistently_over, got %s", s.Reason)
	}
	if s.SuggestedAmount.Cents != 13800 {
		t.Fatalf("expected 138.00, got %s", s.SuggestedAmount)
	}
	if s.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", s.Confidence)
	}
}

func TestAnalyzeBudgetCases(t *testing.T) {
	monthly := &core.Budget{ID: "b", CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly}
	cases := []struct {
		name     string
		budget   *core.Budget
		spends   [3]int64
		wantNil  bool
		reason   Reason
		suggests int64
	}{
		{"consistently under", monthly, [3]int64{2000, 3000, 4000}, false, ReasonConsistentlyUnder, 3600},
		{"one month not under", monthly, [3]int64{2000, 3000, 6000}, true, "", 0},
		{"in range", monthly, [3]int64{9000, 10000, 9500}, true, "", 0},
		{"one month not over", monthly, [3]int64{12000, 10500, 13000}, true, "", 0},
		{"weekly budget ignored", &core.Budget{CategoryID: "food", Amount: core.Cents(10000), Period: core.Weekly}, [3]int64{20000, 20000, 20000}, true, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expenses := []*core.Expense{
				exp("food", 2025, 2, 3, tc.spends[0]),
				exp("food", 2025, 3, 3, tc.spends[1]),
				exp("food", 2025, 4, 3, tc.spends[2]),
			}
			s := AnalyzeBudget(tc.budget, expenses, nil, 1, now)
			if tc.wantNil {
				if s != nil {
					t.Fatalf("expected nil, got %+v", s)
				}
				return
			}
			if s == nil || s.Reason != tc.reason || s.SuggestedAmount.Cents != tc.suggests {
				t.Fatalf("unexpected suggestion %+v", s)
			}
		})
	}
}

func TestAnalyzeBudgetNeedsThreeMonths(t *testing.T) {
	b := &core.Budget{CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly}
	expenses := []*core.Expense{
		exp("food", 2025, 3, 3, 20000),
		exp("food", 2025, 4, 3, 20000),
	}
	if s := AnalyzeBudget(b, expenses, nil, 1, now); s != nil {
		t.Fatalf("two months of data should not be analyzed, got %+v", s)
	}
}

func TestAllBudgetSuggestionsSorted(t *testing.T) {
	budgets := []*core.Budget{
		{ID: "small", CategoryID: "a", Amount: core.Cents(10000), Period: core.Monthly},
		{ID: "big", CategoryID: "b", Amount: core.Cents(10000), Period: core.Monthly},
		{ID: "noisy", CategoryID: "c", Amount: core.Cents(10000), Period: core.Monthly},
	}
	expenses := []*core.Expense{
		exp("a", 2025, 2, 1, 12000), exp("a", 2025, 3, 1, 12000), exp("a", 2025, 4, 1, 12000),
		exp("b", 2025, 2, 1, 30000), exp("b", 2025, 3, 1, 30000), exp("b", 2025, 4, 1, 30000),
		exp("c", 2025, 2, 1, 12000), exp("c", 2025, 3, 1, 20000), exp("c", 2025, 4, 1, 11500),
	}
	got := AllBudgetSuggestions(budgets, expenses, nil, 1, now)
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(got))
	}
	order := []string{got[0].BudgetID, got[1].BudgetID, got[2].BudgetID}
	if order[0] != "big" || order[1] != "small" || order[2] != "noisy" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestCalculateRolloverAmount(t *testing.T) {
	pct := 50
	capped := core.Cents(1500)
	base := core.Budget{CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly, RolloverEnabled: true}
	expenses := []*core.Expense{exp("food", 2025, 4, 12, 6000), exp("food", 2025, 5, 2, 9999)}

	cases := []struct {
		name   string
		mutate func(b *core.Budget)
		want   int64
	}{
		{"half of remaining", func(b *core.Budget) { b.RolloverPercentage = &pct }, 2000},
		{"default percentage", func(b *core.Budget) {}, 4000},
		{"prior accumulated counts", func(b *core.Budget) { b.AccumulatedRollover = core.Cents(1000) }, 5000},
		{"capped", func(b *core.Budget) { b.RolloverCap = &capped }, 1500},
		{"disabled", func(b *core.Budget) { b.RolloverEnabled = false }, 0},
		{"yearly", func(b *core.Budget) { b.Period = core.Yearly }, 0},
		{"overspent", func(b *core.Budget) { b.Amount = core.Cents(5000) }, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := base
			tc.mutate(&b)
			got := CalculateRolloverAmount(&b, expenses, nil, 1, now)
			if got.Cents != tc.want {
				t.Fatalf("got %d cents, want %d", got.Cents, tc.want)
			}
		})
	}
}

func TestApplyRollover(t *testing.T) {
	b := &core.Budget{ID: "b", CategoryID: "food", Amount: core.Cents(10000), Period: core.Monthly, RolloverEnabled: true}
	if !RolloverDue(b, 1, now) {
		t.Fatal("never-rolled budget should be due")
	}
	updated := ApplyRollover(b, core.Cents(2000), now)
	if b.AccumulatedRollover.Cents != 0 {
		t.Fatal("ApplyRollover must not mutate its input")
	}
	if updated.AccumulatedRollover.Cents != 2000 || updated.LastRolloverDate.String() != "2025-05-15" {
		t.Fatalf("unexpected updated budget %+v", updated)
	}
	if updated.EffectiveAmount().Cents != 12000 {
		t.Fatalf("expected effective 120.00, got %s", updated.EffectiveAmount())
	}
	if RolloverDue(updated, 1, now) {
		t.Fatal("rollover already applied this cycle")
	}
}

func TestNewBudgetSuggestions(t *testing.T) {
	categories := []*core.Category{
		{ID: "food", Name: "Food", Type: "expense"},
		{ID: "gym", Name: "Gym", Type: "expense"},
		{ID: "fun", Name: "Fun", Type: "expense"},
		{ID: "salary", Name: "Salary", Type: "income"},
		{ID: "unused", Name: "Unused", Type: "expense"},
	}
	budgets := []*core.Budget{{CategoryID: "food", Amount: core.Cents(100), Period: core.Monthly}}
	expenses := []*core.Expense{
		exp("food", 2025, 3, 1, 5000),
		exp("gym", 2025, 2, 1, 3000), exp("gym", 2025, 3, 1, 3000), exp("gym", 2025, 4, 1, 3000),
		exp("fun", 2025, 4, 20, 5000),
		exp("salary", 2025, 4, 1, 100000),
	}

	got := NewBudgetSuggestions(categories, budgets, expenses, nil, 1, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", got)
	}
	if got[0].CategoryID != "gym" || got[0].Confidence != ConfidenceHigh || got[0].SuggestedAmount.Cents != 3300 || got[0].MonthsOfData != 3 {
		t.Fatalf("unexpected first suggestion %+v", got[0])
	}
	if got[1].CategoryID != "fun" || got[1].Confidence != ConfidenceLow || got[1].SuggestedAmount.Cents != 5500 || got[1].MonthsOfData != 1 {
		t.Fatalf("unexpected second suggestion %+v", got[1])
	}
}

func TestUsage(t *testing.T) {
	b := &core.Budget{Amount: core.Cents(10000), AlertThreshold: 80, RolloverEnabled: true, AccumulatedRollover: core.Cents(2000)}
	r := Usage(b, core.Cents(10000))
	if r.Percentage.String() != "83.33" || !r.Alert || r.Over {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Remaining.Cents != 2000 {
		t.Fatalf("expected 20.00 remaining, got %s", r.Remaining)
	}
	if r := Usage(b, core.Cents(13000)); !r.Over {
		t.Fatal("expected over budget")
	}
}
