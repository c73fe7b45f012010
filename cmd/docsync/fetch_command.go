package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docsync/internal/ipc"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Start a managed background download for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BackgroundFetch(args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Background download started (job %s)\n", resp.JobID)
				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List managed background downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Jobs)
				}

				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No background downloads")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, job := range resp.Jobs {
					finished := ""
					if job.FinishedAt != nil {
						finished = job.FinishedAt.Local().Format(time.TimeOnly)
					}
					rows = append(rows, []string{
						job.ID,
						job.URL,
						job.State,
						truncate(job.Error, 40),
						job.StartedAt.Local().Format(time.TimeOnly),
						finished,
					})
				}
				table := renderTable(
					[]string{"Job", "URL", "State", "Error", "Started", "Finished"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}
