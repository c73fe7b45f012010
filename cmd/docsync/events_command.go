package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docsync/internal/ipc"
	"docsync/internal/msg"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var since int64
	var follow bool
	var max int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the daemon's sync event journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				cursor := since
				for {
					wait := 0
					if follow {
						wait = 5000
					}
					resp, err := client.Events(ipc.EventsRequest{
						Since:      cursor,
						Max:        max,
						WaitMillis: wait,
					})
					if err != nil {
						return err
					}
					for _, event := range resp.Events {
						if ctx.JSONMode() {
							if err := writeJSON(cmd, event); err != nil {
								return err
							}
							continue
						}
						fmt.Fprintln(cmd.OutOrStdout(), formatEvent(event))
					}
					cursor = resp.Next
					if !follow {
						return nil
					}
					if cmd.Context().Err() != nil {
						return cmd.Context().Err()
					}
				}
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "Resume cursor (0 starts at the beginning of the journal)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().IntVar(&max, "max", 64, "Maximum events per poll")
	return cmd
}

func formatEvent(event msg.Event) string {
	stamp := event.Time.Local().Format(time.TimeOnly)
	switch event.Type {
	case msg.EventDocSynced:
		return fmt.Sprintf("%s  synced   %s (tenant %s, via %s)", stamp, event.URL, event.Tenant, event.Source)
	case msg.EventDocCached:
		return fmt.Sprintf("%s  cached   %s (tenant %s)", stamp, event.URL, event.Tenant)
	case msg.EventSyncComplete:
		return fmt.Sprintf("%s  sync done: %d succeeded, %d failed", stamp, event.SuccessCount, event.FailedCount)
	default:
		return fmt.Sprintf("%s  %s %s", stamp, event.Type, event.URL)
	}
}
