package core

import (
	"errors"
	"fmt"
	"strings"
)

// Entity identifies a remote collection.
type Entity string

const (
	EntityExpense   Entity = "expense"
	EntityCategory  Entity = "category"
	EntityBudget    Entity = "budget"
	EntityRecurring Entity = "recurring"
	EntityIncome    Entity = "income"
	EntityCard      Entity = "card"
	EntityBank      Entity = "bank"
	EntityEWallet   Entity = "ewallet"
	EntityRepayment Entity = "repayment"
)

// Entities lists every known entity in a stable order.
var Entities = []Entity{
	EntityExpense,
	EntityCategory,
	EntityBudget,
	EntityRecurring,
	EntityIncome,
	EntityCard,
	EntityBank,
	EntityEWallet,
	EntityRepayment,
}

func (e Entity) Valid() bool {
	for _, known := range Entities {
		if e == known {
			return true
		}
	}
	return false
}

func (e Entity) String() string { return string(e) }

// ParseEntity accepts an entity name case-insensitively.
func ParseEntity(s string) (Entity, error) {
	e := Entity(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity %q", s)
	}
	return e, nil
}

// Record is implemented by every persisted entity type.
type Record interface {
	EntityKind() Entity
	RecordID() string
	Validate() error
}

// Identifiable records can have their id assigned by the store.
type Identifiable interface {
	Record
	SetRecordID(id string)
}

type (
	Expense struct {
		ID            string `json:"id"`
		Date          Date   `json:"date"`
		Description   string `json:"description"`
		Amount        Money  `json:"amount"`
		CategoryID    string `json:"categoryId"`
		PaymentMethod string `json:"paymentMethod,omitempty"`
		CardID        string `json:"cardId,omitempty"`
		EWalletID     string `json:"ewalletId,omitempty"`
		BankID        string `json:"bankId,omitempty"`
	}

	Category struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Icon  string `json:"icon,omitempty"`
		Color string `json:"color,omitempty"`
		Type  string `json:"type"` // "expense" or "income"
	}

	Budget struct {
		ID                  string          `json:"id"`
		CategoryID          string          `json:"categoryId"`
		Amount              Money           `json:"amount"`
		Period              RepetitionTypes `json:"period"`
		AlertThreshold      int             `json:"alertThreshold"`
		RolloverEnabled     bool            `json:"rolloverEnabled,omitempty"`
		RolloverPercentage  *int            `json:"rolloverPercentage,omitempty"`
		RolloverCap         *Money          `json:"rolloverCap,omitempty"`
		AccumulatedRollover Money           `json:"accumulatedRollover,omitempty"`
		LastRolloverDate    Date            `json:"lastRolloverDate,omitempty"`
	}

	// Recurring is a scheduled payment template.
	Recurring struct {
		ID            string          `json:"id"`
		Description   string          `json:"description"`
		Amount        Money           `json:"amount"`
		CategoryID    string          `json:"categoryId"`
		Frequency     RepetitionTypes `json:"frequency"`
		StartDate     Date            `json:"startDate"`
		EndDate       Date            `json:"endDate,omitempty"`
		LastExecution Date            `json:"lastExecution,omitempty"`
		Active        bool            `json:"active"`
	}

	Income struct {
		ID          string `json:"id"`
		Date        Date   `json:"date"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Source      string `json:"source,omitempty"`
	}

	Card struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Last4           string `json:"last4,omitempty"`
		Limit           Money  `json:"limit,omitempty"`
		BillingCycleDay int    `json:"billingCycleDay,omitempty"`
	}

	Bank struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		AccountNumber string `json:"accountNumber,omitempty"`
	}

	EWallet struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Provider string `json:"provider,omitempty"`
	}

	// Repayment is money returned against earlier spending on a card or category.
	Repayment struct {
		ID          string `json:"id"`
		Date        Date   `json:"date"`
		CardID      string `json:"cardId,omitempty"`
		CategoryID  string `json:"categoryId,omitempty"`
		Amount      Money  `json:"amount"`
		Description string `json:"description,omitempty"`
	}
)

func (e *Expense) EntityKind() Entity     { return EntityExpense }
func (e *Expense) RecordID() string       { return e.ID }
func (e *Expense) SetRecordID(id string)  { e.ID = id }
func (c *Category) EntityKind() Entity    { return EntityCategory }
func (c *Category) RecordID() string      { return c.ID }
func (c *Category) SetRecordID(id string) { c.ID = id }
func (b *Budget) EntityKind() Entity      { return EntityBudget }
func (b *Budget) RecordID() string        { return b.ID }
func (b *Budget) SetRecordID(id string)   { b.ID = id }
func (r *Recurring) EntityKind() Entity   { return EntityRecurring }
func (r *Recurring) RecordID() string     { return r.ID }
func (r *Recurring) SetRecordID(id string) {
	r.ID = id
}
func (i *Income) EntityKind() Entity       { return EntityIncome }
func (i *Income) RecordID() string         { return i.ID }
func (i *Income) SetRecordID(id string)    { i.ID = id }
func (c *Card) EntityKind() Entity         { return EntityCard }
func (c *Card) RecordID() string           { return c.ID }
func (c *Card) SetRecordID(id string)      { c.ID = id }
func (b *Bank) EntityKind() Entity         { return EntityBank }
func (b *Bank) RecordID() string           { return b.ID }
func (b *Bank) SetRecordID(id string)      { b.ID = id }
func (w *EWallet) EntityKind() Entity      { return EntityEWallet }
func (w *EWallet) RecordID() string        { return w.ID }
func (w *EWallet) SetRecordID(id string)   { w.ID = id }
func (r *Repayment) EntityKind() Entity    { return EntityRepayment }
func (r *Repayment) RecordID() string      { return r.ID }
func (r *Repayment) SetRecordID(id string) { r.ID = id }

func (e *Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (c *Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	switch c.Type {
	case "expense", "income":
		return nil
	default:
		return fmt.Errorf("invalid category type %q", c.Type)
	}
}

func (b *Budget) Validate() error {
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() || b.Period == Daily {
		return fmt.Errorf("invalid budget period %q", b.Period)
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 100 {
		return errors.New("alert threshold must be between 0 and 100")
	}
	if b.RolloverPercentage != nil && (*b.RolloverPercentage < 0 || *b.RolloverPercentage > 100) {
		return errors.New("rollover percentage must be between 0 and 100")
	}
	if b.RolloverCap != nil && b.RolloverCap.Cents < 0 {
		return errors.New("rollover cap cannot be negative")
	}
	return nil
}

// EffectiveAmount is the spendable amount for the current cycle.
// AccumulatedRollover only counts when rollover is enabled.
func (b *Budget) EffectiveAmount() Money {
	if b.RolloverEnabled {
		return Money{Cents: b.Amount.Cents + b.AccumulatedRollover.Cents}
	}
	return b.Amount
}

func (r *Recurring) Validate() error {
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.EndDate.IsZero() {
		if err := r.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if r.EndDate.Before(r.StartDate.Time) {
			return errors.New("end date must be after start date")
		}
	}
	if !r.Frequency.Valid() {
		return errors.New("invalid repetition type")
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (i *Income) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(i.Description); err != nil {
		return err
	}
	return i.Amount.Validate()
}

func (c *Card) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.Last4 != "" && len(c.Last4) != 4 {
		return errors.New("last4 must be exactly 4 digits")
	}
	if c.BillingCycleDay < 0 || c.BillingCycleDay > 31 {
		return errors.New("billing cycle day must be between 1 and 31")
	}
	return nil
}

func (b *Bank) Validate() error {
	return validateName(b.Name)
}

func (w *EWallet) Validate() error {
	return validateName(w.Name)
}

func (r *Repayment) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if r.CardID == "" && r.CategoryID == "" {
		return errors.New("repayment needs a card or a category")
	}
	return r.Amount.Validate()
}
