package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/budget"
	"fintrack/internal/core"

	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Budget analytics over billing cycles",
}

var budgetHistoryCmd = &cobra.Command{
	Use:   "history <category-id>",
	Short: "Net spend per billing cycle for a category, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		months, _ := cmd.Flags().GetInt("months")
		if months < 1 {
			return fmt.Errorf("--months must be at least 1")
		}
		ds, err := a.loadDataset(cmd.Context(), core.EntityExpense, core.EntityRepayment)
		if err != nil {
			return err
		}
		history := budget.SpendingHistory(args[0], ds.expenses, ds.repayments, a.cfg.Budget.CycleDay, months, time.Now())
		if flagJSON {
			return writeJSON(stdout, history)
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "CYCLE\tGROSS\tREPAID\tNET\t")
		for _, p := range history {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", cycleLabel(p), p.Gross, p.Repaid, p.Net)
		}
		return tw.Flush()
	}),
}

var budgetSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest adjustments for budgets that are consistently over or under",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ds, err := a.loadDataset(cmd.Context(), core.EntityBudget, core.EntityExpense, core.EntityRepayment)
		if err != nil {
			return err
		}
		suggestions := budget.AllBudgetSuggestions(ds.budgets, ds.expenses, ds.repayments, a.cfg.Budget.CycleDay, time.Now())
		if flagJSON {
			if suggestions == nil {
				suggestions = []budget.Suggestion{}
			}
			return writeJSON(stdout, suggestions)
		}
		if len(suggestions) == 0 {
			fmt.Fprintln(stdout, "all budgets are on track")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BUDGET\tCATEGORY\tCURRENT\tSUGGESTED\tAVG SPEND\tREASON\tCONFIDENCE")
		for _, s := range suggestions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.BudgetID, s.CategoryID, s.CurrentAmount, s.SuggestedAmount, s.AverageSpend,
				strings.ReplaceAll(string(s.Reason), "_", " "), s.Confidence)
		}
		return tw.Flush()
	}),
}

var budgetNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Suggest budgets for expense categories that have none",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ds, err := a.loadDataset(cmd.Context(), core.EntityCategory, core.EntityBudget, core.EntityExpense, core.EntityRepayment)
		if err != nil {
			return err
		}
		suggestions := budget.NewBudgetSuggestions(ds.categories, ds.budgets, ds.expenses, ds.repayments, a.cfg.Budget.CycleDay, time.Now())
		if flagJSON {
			if suggestions == nil {
				suggestions = []budget.NewBudgetSuggestion{}
			}
			return writeJSON(stdout, suggestions)
		}
		if len(suggestions) == 0 {
			fmt.Fprintln(stdout, "no unbudgeted categories with spending")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tSUGGESTED\tAVG SPEND\tMONTHS\tCONFIDENCE")
		for _, s := range suggestions {
			name := s.CategoryName
			if name == "" {
				name = s.CategoryID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", name, s.SuggestedAmount, s.AverageSpend, s.MonthsOfData, s.Confidence)
		}
		return tw.Flush()
	}),
}

type rolloverRow struct {
	BudgetID   string     `json:"budgetId"`
	CategoryID string     `json:"categoryId"`
	Amount     core.Money `json:"amount"`
	Applied    bool       `json:"applied"`
	Message    string     `json:"message,omitempty"`
}

var budgetRolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Show, or with --apply record, rollover for the current cycle",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		apply, _ := cmd.Flags().GetBool("apply")
		ds, err := a.loadDataset(ctx, core.EntityBudget, core.EntityExpense, core.EntityRepayment)
		if err != nil {
			return err
		}
		now := time.Now()
		cycleDay := a.cfg.Budget.CycleDay

		var rows []rolloverRow
		for _, b := range ds.budgets {
			if !budget.RolloverDue(b, cycleDay, now) {
				continue
			}
			row := rolloverRow{
				BudgetID:   b.ID,
				CategoryID: b.CategoryID,
				Amount:     budget.CalculateRolloverAmount(b, ds.expenses, ds.repayments, cycleDay, now),
			}
			if apply {
				out, err := a.mutations.Update(ctx, budget.ApplyRollover(b, row.Amount, now))
				if err != nil {
					return fmt.Errorf("apply rollover to budget %s: %w", b.ID, err)
				}
				row.Applied = true
				row.Message = out.Message()
			}
			rows = append(rows, row)
		}

		if flagJSON {
			if rows == nil {
				rows = []rolloverRow{}
			}
			return writeJSON(stdout, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(stdout, "no rollover due this cycle")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BUDGET\tCATEGORY\tROLLOVER\tSTATUS")
		for _, r := range rows {
			status := "pending (use --apply)"
			if r.Applied {
				status = r.Message
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.BudgetID, r.CategoryID, r.Amount, status)
		}
		return tw.Flush()
	}),
}

type usageRow struct {
	BudgetID   string `json:"budgetId"`
	CategoryID string `json:"categoryId"`
	budget.UsageReport
}

var budgetUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Spend against each budget in the current cycle",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ds, err := a.loadDataset(cmd.Context(), core.EntityBudget, core.EntityExpense, core.EntityRepayment)
		if err != nil {
			return err
		}
		now := time.Now()
		rows := make([]usageRow, 0, len(ds.budgets))
		for _, b := range ds.budgets {
			rows = append(rows, usageRow{
				BudgetID:    b.ID,
				CategoryID:  b.CategoryID,
				UsageReport: budget.CurrentUsage(b, ds.expenses, ds.repayments, a.cfg.Budget.CycleDay, now),
			})
		}
		if flagJSON {
			return writeJSON(stdout, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(stdout, "no budgets")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tSPENT\tBUDGET\tREMAINING\tUSED")
		for _, r := range rows {
			used := r.Percentage.StringFixed(1) + "%"
			switch {
			case r.Over:
				used = colorize(colorRed, used+" over")
			case r.Alert:
				used = colorize(colorYellow, used)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CategoryID, r.Spent, r.Effective, r.Remaining, used)
		}
		return tw.Flush()
	}),
}

func init() {
	budgetHistoryCmd.Flags().Int("months", 6, "number of billing cycles")
	budgetRolloverCmd.Flags().Bool("apply", false, "record the rollover on each due budget")
	budgetCmd.AddCommand(budgetHistoryCmd, budgetSuggestCmd, budgetNewCmd, budgetRolloverCmd, budgetUsageCmd)
}

func cycleLabel(p budget.Period) string {
	return p.Start.Format(time.DateOnly) + " to " + p.End.AddDate(0, 0, -1).Format(time.DateOnly)
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Income, expenses and top categories for a month",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		month, _ := cmd.Flags().GetString("month")
		ref := time.Now()
		if month != "" {
			t, err := time.Parse("2006-01", month)
			if err != nil {
				return fmt.Errorf("invalid --month %q: expected YYYY-MM", month)
			}
			ref = t
		}
		ds, err := a.loadDataset(cmd.Context(), core.EntityExpense, core.EntityIncome)
		if err != nil {
			return err
		}
		ov := core.Summarize(ref.Year(), ref.Month(), ds.expenses, ds.incomes)
		if flagJSON {
			return writeJSON(stdout, ov)
		}
		printStatus("Month", "%04d-%02d", ov.Year, ov.Month)
		printStatus("Income", "%s", ov.Income)
		printStatus("Expenses", "%s", ov.Total)
		printStatus("Net", "%s", ov.Net())
		if len(ov.ByCategory) == 0 {
			return nil
		}
		fmt.Fprintln(stdout)
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tAMOUNT")
		for _, c := range ov.ByCategory {
			fmt.Fprintf(tw, "%s\t%s\n", c.CategoryID, c.Amount)
		}
		return tw.Flush()
	}),
}

func init() {
	summaryCmd.Flags().String("month", "", "month as YYYY-MM (default: current)")
}
