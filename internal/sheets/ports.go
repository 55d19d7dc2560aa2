// Package sheets defines the expense mirror ports. Adapters live in the
// google and memory subpackages.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseWriter inserts an expense row, or overwrites the row already
	// holding the same expense id.
	ExpenseWriter interface {
		UpsertExpense(ctx context.Context, userID string, e *core.Expense) (rowRef string, err error)
	}

	// ExpenseDeleter removes the row of an expense. Removing an expense that
	// was never mirrored is not an error.
	ExpenseDeleter interface {
		DeleteExpense(ctx context.Context, userID, id string) error
	}

	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Description", "Amount", "Category", "Payment", "User"}

// Row renders e in Header order.
func Row(userID string, e *core.Expense) []any {
	return []any{e.ID, e.Date.String(), e.Description, e.Amount.String(), e.CategoryID, e.PaymentMethod, userID}
}
