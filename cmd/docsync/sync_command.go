package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docsync/internal/ipc"
	"docsync/internal/wakeup"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var registerOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a daemon sync pass over the pending-download queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()

				if registerOnly {
					resp, err := client.RegisterSync(wakeup.TagSyncPending)
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, resp)
					}
					if resp.Registered {
						fmt.Fprintln(out, "Sync registered; the daemon drains the queue when online")
					} else {
						fmt.Fprintf(out, "Sync registration refused: %s\n", resp.Message)
					}
					return nil
				}

				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				if resp.Started {
					fmt.Fprintln(out, resp.Message)
				} else {
					fmt.Fprintf(out, "Sync pass failed: %s\n", resp.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&registerOnly, "register", false, "Register a sync tag instead of draining immediately")
	return cmd
}
