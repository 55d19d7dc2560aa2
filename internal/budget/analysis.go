package budget

import (
	"math"
	"sort"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonConsistentlyOver  Reason = "consistently_over"
	ReasonConsistentlyUnder Reason = "consistently_under"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

// AnalysisMonths is the number of completed cycles a budget is judged on.
const AnalysisMonths = 3

var (
	hundred        = decimal.NewFromInt(100)
	overThreshold  = decimal.NewFromInt(110)
	underThreshold = decimal.NewFromInt(50)
	overFactor     = decimal.RequireFromString("1.1")
	underFactor    = decimal.RequireFromString("1.2")
	underCeiling   = decimal.RequireFromString("0.8")
)

// Suggestion proposes a new amount for an existing budget.
type Suggestion struct {
	BudgetID        string            `json:"budgetId"`
	CategoryID      string            `json:"categoryId"`
	CurrentAmount   core.Money        `json:"currentAmount"`
	SuggestedAmount core.Money        `json:"suggestedAmount"`
	AverageSpend    core.Money        `json:"averageSpend"`
	Usage           []decimal.Decimal `json:"usage"`
	Reason          Reason            `json:"reason"`
	Confidence      Confidence        `json:"confidence"`
}

// Change is SuggestedAmount minus CurrentAmount.
func (s Suggestion) Change() core.Money {
	return s.SuggestedAmount.Sub(s.CurrentAmount)
}

// AnalyzeBudget compares a monthly budget against the last three completed
// cycles. It returns nil when the budget is not monthly, when fewer than three
// cycles of history exist, or when spending is within range. Overspending is
// checked before underspending.
func AnalyzeBudget(b *core.Budget, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay int, now time.Time) *Suggestion {
	if b == nil || b.Period != core.Monthly || b.Amount.Cents <= 0 {
		return nil
	}
	history := completedHistory(b.CategoryID, expenses, repayments, billingCycleDay, AnalysisMonths, now)
	first, ok := firstExpense(b.CategoryID, expenses)
	if !ok || !first.Before(history[0].End) {
		return nil
	}

	amount := decimal.NewFromInt(b.Amount.Cents)
	usage := make([]decimal.Decimal, len(history))
	allOver, allUnder := true, true
	var total int64
	for i, p := range history {
		usage[i] = decimal.NewFromInt(p.Net.Cents).Div(amount).Mul(hundred).Round(2)
		if !usage[i].GreaterThan(overThreshold) {
			allOver = false
		}
		if !usage[i].LessThan(underThreshold) {
			allUnder = false
		}
		total += p.Net.Cents
	}
	avg := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(history))))

	s := &Suggestion{
		BudgetID:      b.ID,
		CategoryID:    b.CategoryID,
		CurrentAmount: b.Amount,
		AverageSpend:  core.Cents(avg.Round(0).IntPart()),
		Usage:         usage,
		Confidence:    usageConfidence(usage),
	}
	switch {
	case allOver:
		s.Reason = ReasonConsistentlyOver
		s.SuggestedAmount = ceilUnits(avg, overFactor)
	case allUnder:
		reduced := ceilUnits(avg, underFactor)
		if !decimal.NewFromInt(reduced.Cents).LessThan(amount.Mul(underCeiling)) {
			return nil
		}
		s.Reason = ReasonConsistentlyUnder
		s.SuggestedAmount = reduced
	default:
		return nil
	}
	return s
}

// AllBudgetSuggestions analyzes every budget, sorted by confidence (high
// first) then by size of the change, largest first.
func AllBudgetSuggestions(budgets []*core.Budget, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay int, now time.Time) []Suggestion {
	out := []Suggestion{}
	for _, b := range budgets {
		if s := AnalyzeBudget(b, expenses, repayments, billingCycleDay, now); s != nil {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Confidence.rank(), out[j].Confidence.rank()
		if ri != rj {
			return ri < rj
		}
		return abs(out[i].Change().Cents) > abs(out[j].Change().Cents)
	})
	return out
}

// NewBudgetSuggestion proposes a budget for a category that has none.
type NewBudgetSuggestion struct {
	CategoryID      string     `json:"categoryId"`
	CategoryName    string     `json:"categoryName"`
	SuggestedAmount core.Money `json:"suggestedAmount"`
	AverageSpend    core.Money `json:"averageSpend"`
	MonthsOfData    int        `json:"monthsOfData"`
	Confidence      Confidence `json:"confidence"`
}

// NewBudgetSuggestions covers expense categories without a budget, using up
// to three completed cycles of spend. Cycles before the category's first
// expense are not counted. Categories with no spend are skipped. Results are
// sorted by confidence then suggested amount, largest first.
func NewBudgetSuggestions(categories []*core.Category, budgets []*core.Budget, expenses []*core.Expense, repayments []*core.Repayment, billingCycleDay int, now time.Time) []NewBudgetSuggestion {
	budgeted := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		budgeted[b.CategoryID] = true
	}

	out := []NewBudgetSuggestion{}
	for _, c := range categories {
		if c.Type != "expense" || budgeted[c.ID] {
			continue
		}
		first, ok := firstExpense(c.ID, expenses)
		if !ok {
			continue
		}
		var spends []int64
		for _, p := range completedHistory(c.ID, expenses, repayments, billingCycleDay, AnalysisMonths, now) {
			if !first.Before(p.End) {
				continue
			}
			spends = append(spends, p.Net.Cents)
		}
		var total int64
		for _, v := range spends {
			total += v
		}
		if len(spends) == 0 || total == 0 {
			continue
		}
		avg := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(spends))))
		out = append(out, NewBudgetSuggestion{
			CategoryID:      c.ID,
			CategoryName:    c.Name,
			SuggestedAmount: ceilUnits(avg, overFactor),
			AverageSpend:    core.Cents(avg.Round(0).IntPart()),
			MonthsOfData:    len(spends),
			Confidence:      variationConfidence(spends),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Confidence.rank(), out[j].Confidence.rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].SuggestedAmount.Cents > out[j].SuggestedAmount.Cents
	})
	return out
}

// ceilUnits returns ceil(cents/100 × factor) whole currency units, as Money.
func ceilUnits(avgCents, factor decimal.Decimal) core.Money {
	units := avgCents.Div(hundred).Mul(factor).Ceil()
	return core.Cents(units.Mul(hundred).IntPart())
}

// usageConfidence grades the population standard deviation of usage
// percentages: below 15 is high, below 30 medium.
func usageConfidence(usage []decimal.Decimal) Confidence {
	values := make([]float64, len(usage))
	for i, u := range usage {
		values[i] = u.InexactFloat64()
	}
	_, sd := meanStdDev(values)
	switch {
	case sd < 15:
		return ConfidenceHigh
	case sd < 30:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// variationConfidence grades the coefficient of variation of monthly spend:
// below 0.2 is high, below 0.4 medium. One month of data is always low.
func variationConfidence(spends []int64) Confidence {
	if len(spends) < 2 {
		return ConfidenceLow
	}
	values := make([]float64, len(spends))
	for i, s := range spends {
		values[i] = float64(s)
	}
	mean, sd := meanStdDev(values)
	if mean == 0 {
		return ConfidenceLow
	}
	cv := sd / mean
	switch {
	case cv < 0.2:
		return ConfidenceHigh
	case cv < 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func meanStdDev(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
