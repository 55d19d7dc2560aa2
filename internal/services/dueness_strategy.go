package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// DuenessChecker decides whether a recurring payment should run at now,
// given when it last ran. A zero lastExecution means it never ran.
type DuenessChecker interface {
	IsDue(lastExecution core.Date, now time.Time, startDate core.Date) bool
}

// DailyChecker runs once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastExecution core.Date, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return lastExecution.Before(core.DateOf(now).Time)
}

// WeeklyChecker runs when seven or more days have passed.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastExecution core.Date, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return !core.DateOf(now).Before(lastExecution.AddDate(0, 0, 7))
}

// MonthlyChecker runs once per month, on or after the start date's day. In
// months too short for that day it runs on the last day.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastExecution core.Date, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() && lastExecution.Month() == int(now.Month()) {
		return false
	}
	return now.Day() >= clampDay(startDate.Day(), now.Year(), now.Month())
}

// YearlyChecker runs once per year, on or after the start date's month and day.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastExecution core.Date, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}

	month := time.Month(startDate.Month())
	switch {
	case now.Month() < month:
		return false
	case now.Month() == month:
		return now.Day() >= clampDay(startDate.Day(), now.Year(), month)
	default:
		return true
	}
}

func clampDay(day, year int, month time.Month) int {
	if last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day(); day > last {
		return last
	}
	return day
}

var duenessStrategies = map[core.RepetitionTypes]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for frequency.
func GetDuenessChecker(frequency core.RepetitionTypes) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}

// IsRecurringDue reports whether r should produce an expense at now: it must
// be active, inside its start/end window, and due per its frequency.
func IsRecurringDue(r *core.Recurring, now time.Time) (bool, error) {
	if !r.Active {
		return false, nil
	}
	today := core.DateOf(now)
	if today.Before(r.StartDate.Time) {
		return false, nil
	}
	if !r.EndDate.IsZero() && today.After(r.EndDate.Time) {
		return false, nil
	}
	checker, err := GetDuenessChecker(r.Frequency)
	if err != nil {
		return false, err
	}
	return checker.IsDue(r.LastExecution, now, r.StartDate), nil
}
