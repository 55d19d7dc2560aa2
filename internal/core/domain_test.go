package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2025-03-15T10:30:00Z"`), &d); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if d.String() != "2025-03-15" {
		t.Fatalf("expected calendar day, got %s", d)
	}
	out, _ := json.Marshal(Date{})
	if string(out) != `""` {
		t.Fatalf("zero date should encode empty, got %s", out)
	}
	if err := json.Unmarshal([]byte(`"15/03/2025"`), &d); err == nil {
		t.Fatalf("expected error for bad layout")
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      Money{Cents: 100},
		CategoryID:  "food",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Date: Date{Time: time.Time{}}, Description: "a", Amount: Money{Cents: 1}, CategoryID: "c"}, // zero date
		{Date: NewDate(2025, 1, 1), Description: "", Amount: Money{Cents: 1}, CategoryID: "c"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 0}, CategoryID: "c"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, CategoryID: " "},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestBudgetEffectiveAmount(t *testing.T) {
	b := Budget{Amount: Cents(10000), AccumulatedRollover: Cents(2000)}
	if got := b.EffectiveAmount(); got.Cents != 10000 {
		t.Fatalf("rollover disabled: expected 10000, got %d", got.Cents)
	}
	b.RolloverEnabled = true
	if got := b.EffectiveAmount(); got.Cents != 12000 {
		t.Fatalf("rollover enabled: expected 12000, got %d", got.Cents)
	}
}

func TestBudgetValidate(t *testing.T) {
	pct := 150
	cases := []struct {
		name string
		b    Budget
		ok   bool
	}{
		{"monthly", Budget{CategoryID: "c", Amount: Cents(100), Period: Monthly, AlertThreshold: 80}, true},
		{"daily period", Budget{CategoryID: "c", Amount: Cents(100), Period: Daily}, false},
		{"no category", Budget{Amount: Cents(100), Period: Monthly}, false},
		{"bad percentage", Budget{CategoryID: "c", Amount: Cents(100), Period: Monthly, RolloverPercentage: &pct}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.b.Validate()
			if tc.ok != (err == nil) {
				t.Fatalf("ok=%v, err=%v", tc.ok, err)
			}
		})
	}
}

func TestRecurringValidateEndBeforeStart(t *testing.T) {
	r := Recurring{
		Description: "rent",
		Amount:      Cents(50000),
		CategoryID:  "home",
		Frequency:   Monthly,
		StartDate:   NewDate(2025, 5, 1),
		EndDate:     NewDate(2025, 4, 1),
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for end before start")
	}
	r.EndDate = Date{}
	if err := r.Validate(); err != nil {
		t.Fatalf("open-ended schedule should be valid: %v", err)
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord(EntityExpense, []byte(`{"id":"e1","date":"2025-01-02","description":"x","amount":250,"categoryId":"c"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	exp, ok := rec.(*Expense)
	if !ok {
		t.Fatalf("expected *Expense, got %T", rec)
	}
	if exp.ID != "e1" || exp.Amount.Cents != 250 || exp.Date.Day() != 2 {
		t.Fatalf("unexpected record %+v", exp)
	}
	if _, err := NewRecord(Entity("widgets")); err == nil {
		t.Fatal("expected error for unknown entity")
	}
	for _, e := range Entities {
		r, err := NewRecord(e)
		if err != nil {
			t.Fatalf("%s: %v", e, err)
		}
		if r.EntityKind() != e {
			t.Fatalf("%s constructs %s", e, r.EntityKind())
		}
	}
}

func TestParseEntity(t *testing.T) {
	e, err := ParseEntity(" Expense ")
	if err != nil || e != EntityExpense {
		t.Fatalf("got %q, %v", e, err)
	}
	if _, err := ParseEntity("nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSummarize(t *testing.T) {
	exps := []*Expense{
		{Date: NewDate(2025, 3, 1), Amount: Cents(500), CategoryID: "food"},
		{Date: NewDate(2025, 3, 9), Amount: Cents(700), CategoryID: "home"},
		{Date: NewDate(2025, 3, 20), Amount: Cents(400), CategoryID: "food"},
		{Date: NewDate(2025, 4, 1), Amount: Cents(9999), CategoryID: "food"},
	}
	incs := []*Income{{Date: NewDate(2025, 3, 1), Amount: Cents(2000)}}
	ov := Summarize(2025, time.March, exps, incs)
	if ov.Total.Cents != 1600 || ov.Income.Cents != 2000 || ov.Net().Cents != 400 {
		t.Fatalf("unexpected overview %+v", ov)
	}
	if len(ov.ByCategory) != 2 || ov.ByCategory[0].CategoryID != "food" {
		t.Fatalf("unexpected categories %+v", ov.ByCategory)
	}
}
