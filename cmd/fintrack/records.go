package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/core"

	"github.com/spf13/cobra"
)

func entityList() string {
	names := make([]string, len(core.Entities))
	for i, e := range core.Entities {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <entity> key=value...",
	Short: "Create a record",
	Long: `Create a record. Entities: ` + entityList() + `.

Amounts are decimals, dates are YYYY-MM-DD or "today". When the server is
unreachable the record is kept locally and queued for sync.

Examples:
  fintrack add expense date=today description="Coffee" amount=2,50 categoryId=food
  fintrack add category name=Food type=expense
  fintrack add budget categoryId=food amount=300 period=monthly alertThreshold=80`,
	Args: cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		entity, err := core.ParseEntity(args[0])
		if err != nil {
			return err
		}
		fields, err := parseAssignments(args[1:], core.DateOf(time.Now()))
		if err != nil {
			return err
		}
		rec, err := buildRecord(entity, nil, fields)
		if err != nil {
			return err
		}
		ident, ok := rec.(core.Identifiable)
		if !ok {
			return fmt.Errorf("%s records cannot be created", entity)
		}
		out, err := a.mutations.Create(ctx, ident)
		return reportMutation("create", entity, out, err)
	}),
}

// --- update ---

var updateCmd = &cobra.Command{
	Use:   "update <entity> <id> key=value...",
	Short: "Change fields of a cached record",
	Long: `Change fields of a record. The record is read from the local cache, so run
"fintrack list <entity>" first if it was created on another device.`,
	Args: cobra.MinimumNArgs(3),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		entity, err := core.ParseEntity(args[0])
		if err != nil {
			return err
		}
		id := args[1]
		current, ok, err := a.cache.Get(ctx, entity, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %s is not in the local cache; run `fintrack list %s` first", entity, id, entity)
		}
		fields, err := parseAssignments(args[2:], core.DateOf(time.Now()))
		if err != nil {
			return err
		}
		if _, ok := fields["id"]; ok {
			return fmt.Errorf("the id of a record cannot be changed")
		}
		rec, err := buildRecord(entity, current, fields)
		if err != nil {
			return err
		}
		out, err := a.mutations.Update(ctx, rec)
		return reportMutation("update", entity, out, err)
	}),
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <entity> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		entity, err := core.ParseEntity(args[0])
		if err != nil {
			return err
		}
		out, err := a.mutations.Delete(ctx, entity, args[1])
		return reportMutation("delete", entity, out, err)
	}),
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list <entity>",
	Short: "List records, refreshing the local cache from the server",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		entity, err := core.ParseEntity(args[0])
		if err != nil {
			return err
		}
		offline, _ := cmd.Flags().GetBool("offline")
		if offline {
			a.monitor.SetOnline(false)
		}
		recs, stale, err := a.refresh(ctx, entity)
		if err != nil {
			return err
		}
		if stale && !offline {
			printWarning("server unreachable, showing locally cached %s records", entity)
		}
		return printRecords(recs)
	}),
}

func init() {
	listCmd.Flags().Bool("offline", false, "only read the local cache")
}

func printRecords(recs []core.Record) error {
	if flagJSON {
		if recs == nil {
			recs = []core.Record{}
		}
		return writeJSON(stdout, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(stdout, "no records")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECORD")
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.RecordID(), data)
	}
	return tw.Flush()
}
