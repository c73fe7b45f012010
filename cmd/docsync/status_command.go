package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docsync/internal/ipc"
	"docsync/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusResp := buildStatusSnapshot(cmd, ctx)
			if ctx.JSONMode() {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp.Running {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running (run `docsync daemon start`)", colorize))
			}
			if statusResp.Online {
				fmt.Fprintln(stdout, renderStatusLine("Connectivity", statusOK, "Online", colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Connectivity", statusWarn, "Offline", colorize))
			}
			if strings.TrimSpace(statusResp.Tenant) != "" {
				fmt.Fprintln(stdout, renderStatusLine("Tenant", statusInfo, statusResp.Tenant, colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Background sync", capabilityKind(statusResp.BackgroundSync), capabilityDetail(statusResp.BackgroundSync), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Background fetch", capabilityKind(statusResp.BackgroundFetch), capabilityDetail(statusResp.BackgroundFetch), colorize))
			if len(statusResp.RegisteredTags) > 0 {
				fmt.Fprintln(stdout, renderStatusLine("Parked sync tags", statusInfo, strings.Join(statusResp.RegisteredTags, ", "), colorize))
			}
			if statusResp.ActiveJobs > 0 {
				fmt.Fprintln(stdout, renderStatusLine("Download jobs", statusInfo, fmt.Sprintf("%d", statusResp.ActiveJobs), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp.QueueTotal == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
			} else {
				rows := [][]string{
					{"total", fmt.Sprintf("%d", statusResp.QueueTotal)},
					{"retryable", fmt.Sprintf("%d", statusResp.QueueRetryable)},
					{"exhausted", fmt.Sprintf("%d", statusResp.QueueExhausted)},
				}
				fmt.Fprintln(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}

			if len(statusResp.CachePartitions) > 0 {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Cache Partitions", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := make([][]string, 0, len(statusResp.CachePartitions))
				for _, partition := range statusResp.CachePartitions {
					rows = append(rows, []string{
						partition.Partition,
						fmt.Sprintf("%d", partition.Entries),
						formatBytes(partition.Bytes),
					})
				}
				fmt.Fprintln(stdout, renderTable([]string{"Partition", "Entries", "Size"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			}
			return nil
		},
	}
}

// buildStatusSnapshot collects daemon status, reading the shared database
// directly when the daemon is down.
func buildStatusSnapshot(cmd *cobra.Command, ctx *commandContext) *ipc.StatusResponse {
	statusResp := &ipc.StatusResponse{}

	client, err := ctx.dialClient()
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if !statusResp.Running {
		cfg := ctx.configValue()
		if cfg != nil {
			statusResp.Tenant = cfg.App.Tenant
			statusResp.QueueDBPath = cfg.QueueDBPath()
			statusResp.SocketPath = cfg.SocketPath()
			statusResp.BackgroundSync = cfg.Sync.BackgroundSync
			statusResp.BackgroundFetch = cfg.Sync.BackgroundFetch
			if store, openErr := queue.Open(cfg); openErr == nil {
				if health, healthErr := store.Health(cmd.Context()); healthErr == nil {
					statusResp.QueueTotal = health.Total
					statusResp.QueueRetryable = health.Retryable
					statusResp.QueueExhausted = health.Exhausted
				}
				_ = store.Close()
			}
		}
	}

	return statusResp
}

func capabilityKind(enabled bool) statusKind {
	if enabled {
		return statusOK
	}
	return statusInfo
}

func capabilityDetail(enabled bool) string {
	if enabled {
		return "Enabled"
	}
	return "Disabled"
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
