package core

import (
	"encoding/json"
	"fmt"
)

var constructors = map[Entity]func() Record{
	EntityExpense:   func() Record { return &Expense{} },
	EntityCategory:  func() Record { return &Category{} },
	EntityBudget:    func() Record { return &Budget{} },
	EntityRecurring: func() Record { return &Recurring{} },
	EntityIncome:    func() Record { return &Income{} },
	EntityCard:      func() Record { return &Card{} },
	EntityBank:      func() Record { return &Bank{} },
	EntityEWallet:   func() Record { return &EWallet{} },
	EntityRepayment: func() Record { return &Repayment{} },
}

// NewRecord returns a zero record of the entity's concrete type.
func NewRecord(e Entity) (Record, error) {
	ctor, ok := constructors[e]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", e)
	}
	return ctor(), nil
}

// DecodeRecord unmarshals data into the concrete record type for e.
func DecodeRecord(e Entity, data []byte) (Record, error) {
	rec, err := NewRecord(e)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e, err)
	}
	return rec, nil
}
