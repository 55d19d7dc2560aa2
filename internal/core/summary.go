package core

import (
	"sort"
	"time"
)

// CategoryAmount is an amount aggregated by category id.
type CategoryAmount struct {
	CategoryID string
	Amount     Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Total      Money
	Income     Money
	ByCategory []CategoryAmount
}

// Net is income minus expense total.
func (o MonthOverview) Net() Money { return o.Income.Sub(o.Total) }

// Summarize aggregates the expenses and incomes that fall in year/month.
// Categories are sorted by amount descending, then id.
func Summarize(year int, month time.Month, expenses []*Expense, incomes []*Income) MonthOverview {
	ov := MonthOverview{Year: year, Month: int(month)}
	byCat := map[string]int64{}
	for _, e := range expenses {
		if e.Date.Year() != year || e.Date.Month() != int(month) {
			continue
		}
		ov.Total.Cents += e.Amount.Cents
		byCat[e.CategoryID] += e.Amount.Cents
	}
	for _, in := range incomes {
		if in.Date.Year() == year && in.Date.Month() == int(month) {
			ov.Income.Cents += in.Amount.Cents
		}
	}
	for id, c := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{CategoryID: id, Amount: Money{Cents: c}})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.CategoryID < b.CategoryID
	})
	return ov
}
