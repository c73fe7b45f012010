package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docsync/internal/ipc"
	"docsync/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the pending-download queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueClearExhaustedCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadQueueEntries(cmd, ctx)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.URL,
					entry.Tenant,
					queueEntryState(entry),
					fmt.Sprintf("%d/%d", entry.RetryCount, queue.MaxRetryCount),
					truncate(entry.LastError, 40),
					entry.AddedAt.Local().Format(time.DateTime),
				})
			}
			table := renderTable(
				[]string{"URL", "Tenant", "State", "Retries", "Last Error", "Added"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

// loadQueueEntries prefers the daemon view and falls back to reading the
// shared database directly when the daemon is down.
func loadQueueEntries(cmd *cobra.Command, ctx *commandContext) ([]ipc.QueueEntry, error) {
	var entries []ipc.QueueEntry
	err := ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.QueueList()
		if err != nil {
			return err
		}
		entries = resp.Entries
		return nil
	})
	if err == nil {
		return entries, nil
	}

	cfg := ctx.configValue()
	if cfg == nil {
		return nil, err
	}
	store, openErr := queue.Open(cfg)
	if openErr != nil {
		return nil, err
	}
	defer store.Close()

	raw, listErr := store.List(cmd.Context())
	if listErr != nil {
		return nil, listErr
	}
	entries = make([]ipc.QueueEntry, 0, len(raw))
	for _, entry := range raw {
		entries = append(entries, ipc.FromQueueEntry(entry))
	}
	return entries, nil
}

func queueEntryState(entry ipc.QueueEntry) string {
	if entry.Exhausted {
		return "exhausted"
	}
	return entry.Status
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove one queued download by URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRemove(args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				if resp.Removed {
					fmt.Fprintln(cmd.OutOrStdout(), "Removed")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No queue entry for that URL")
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all queued downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueClearExhaustedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-exhausted",
		Short: "Remove entries that hit the retry ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClearExhausted()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d exhausted entries\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s\n", resp.SchemaVersion)
				fmt.Fprintf(out, "pending_downloads table present: %s\n", yesNo(resp.TableExists))
				if len(resp.ColumnsPresent) > 0 {
					cols := append([]string(nil), resp.ColumnsPresent...)
					sort.Strings(cols)
					fmt.Fprintf(out, "Columns: %s\n", strings.Join(cols, ", "))
				}
				if len(resp.MissingColumns) > 0 {
					missing := append([]string(nil), resp.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				fmt.Fprintf(out, "Total entries: %d\n", resp.TotalEntries)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}
