package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"fintrack/internal/queue"
	"fintrack/internal/syncer"

	"github.com/spf13/cobra"
)

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the offline operation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending operations, oldest first",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ops, err := a.queue.All(cmd.Context())
		if errors.Is(err, queue.ErrCorruptQueue) {
			printWarning("stored queue could not be decoded and is treated as empty")
		} else if err != nil {
			return err
		}
		if flagJSON {
			if ops == nil {
				ops = []queue.QueuedOperation{}
			}
			return writeJSON(stdout, ops)
		}
		if len(ops) == 0 {
			fmt.Fprintln(stdout, "queue is empty")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE ID\tTYPE\tENTITY\tRECORD\tRETRIES\tQUEUED AT")
		for _, op := range ops {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				op.ID, op.Type, op.Entity, op.TargetID(), op.RetryCount, a.queue.MaxRetry(),
				op.Timestamp.Local().Format(time.DateTime))
		}
		return tw.Flush()
	}),
}

var queueCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of pending operations",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		n, err := a.queue.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, n)
		return nil
	}),
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every pending operation",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("clearing the queue loses unsynced changes; pass --yes to confirm")
		}
		if err := a.queue.Clear(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Queue cleared")
		return nil
	}),
}

var queueDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List operations dropped after exhausting their retries",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			if err := a.queue.ClearDeadLetters(ctx); err != nil {
				return err
			}
			printSuccess("Dead letters cleared")
			return nil
		}
		dead, err := a.queue.DeadLetters(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			if dead == nil {
				dead = []queue.DeadLetter{}
			}
			return writeJSON(stdout, dead)
		}
		if len(dead) == 0 {
			fmt.Fprintln(stdout, "no dead letters")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE ID\tTYPE\tENTITY\tRECORD\tDROPPED AT\tLAST ERROR")
		for _, d := range dead {
			op := d.Operation
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				op.ID, op.Type, op.Entity, op.TargetID(),
				d.DroppedAt.Local().Format(time.DateTime), d.LastError)
		}
		return tw.Flush()
	}),
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <queue-id>",
	Short: "Move a dead letter back onto the queue with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := a.queue.Requeue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Requeued as %s", id)
		return nil
	}),
}

func init() {
	queueClearCmd.Flags().Bool("yes", false, "confirm discarding pending operations")
	queueDeadCmd.Flags().Bool("clear", false, "remove all dead letters")
	queueCmd.AddCommand(queueListCmd, queueCountCmd, queueClearCmd, queueDeadCmd, queueRequeueCmd)
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued operations against the server now",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		if !a.probe(ctx) {
			return fmt.Errorf("server %s unreachable: %w", a.remote.BaseURL(), syncer.ErrOffline)
		}

		a.engine.Init(ctx)
		defer a.engine.Dispose()
		if !flagJSON {
			unsubscribe := a.engine.Subscribe(progressPrinter())
			defer unsubscribe()
		}

		res, err := a.engine.ManualSync(ctx)
		if err != nil {
			return err
		}
		if flagJSON {
			return writeJSON(stdout, res)
		}
		if res.Success == 0 && res.Failed == 0 {
			printSuccess("Nothing to sync")
			return nil
		}
		printSuccess("Synced %d operation(s), %d failed", res.Success, res.Failed)
		return nil
	}),
}

// progressPrinter reports sync progress on stderr.
func progressPrinter() func(syncer.SyncProgress) {
	return func(p syncer.SyncProgress) {
		if !p.InProgress {
			return
		}
		printStep("%d/%d done, %d failed", p.Completed+p.Failed, p.Total, p.Failed)
	}
}

// --- status ---

type statusReport struct {
	Server      string `json:"server"`
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Pending     int    `json:"pending"`
	DeadLetters int    `json:"deadLetters"`
	AutoSync    bool   `json:"autoSync"`
	SyncState   string `json:"syncState"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check connectivity and show queue state",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		report := statusReport{
			Server:    a.remote.BaseURL(),
			UserID:    a.cfg.Server.UserID,
			Online:    a.probe(ctx),
			SyncState: a.engine.State(),
		}
		var err error
		if report.Pending, err = a.queue.Count(ctx); err != nil {
			return err
		}
		dead, err := a.queue.DeadLetters(ctx)
		if err != nil {
			return err
		}
		report.DeadLetters = len(dead)
		if report.AutoSync, err = a.engine.AutoSyncEnabled(ctx); err != nil {
			return err
		}

		if flagJSON {
			return writeJSON(stdout, report)
		}
		online := colorize(colorRed, "offline")
		if report.Online {
			online = colorize(colorGreen, "online")
		}
		printStatus("Server", "%s (%s)", report.Server, online)
		printStatus("User", "%s", report.UserID)
		printStatus("Pending", "%d", report.Pending)
		printStatus("Dead letters", "%d", report.DeadLetters)
		printStatus("Auto-sync", "%s", onOff(report.AutoSync))
		return nil
	}),
}

// --- autosync ---

var autosyncCmd = &cobra.Command{
	Use:       "autosync [on|off]",
	Short:     "Show or change whether the daemon syncs on reconnect",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			enabled, err := a.engine.AutoSyncEnabled(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, onOff(enabled))
			return nil
		}
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if err := a.engine.SetAutoSync(ctx, enabled); err != nil {
			return err
		}
		printSuccess("Auto-sync %s", onOff(enabled))
		return nil
	}),
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
