package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/syncq/internal/cmd/client/transports"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/projector"
	"github.com/rzbill/syncq/internal/queue"
)

// errLimitReached ends a watch once --limit lines were printed.
var errLimitReached = errors.New("limit reached")

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Sync queue operations"}
	queueCmd.AddCommand(
		newEnqueueCommand(baseURL),
		newStatusCommand(baseURL),
		newStartCommand(baseURL),
		newStopCommand(baseURL),
		newPurgeCommand(baseURL),
		newClearCommand(baseURL),
		newProcessorsCommand(baseURL),
		newWatchCommand(baseURL),
	)
	return queueCmd
}

func newEnqueueCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue (or replace) the pending sync of one resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _ := cmd.Flags().GetString("queue")
			key, _ := cmd.Flags().GetString("key")
			data, _ := cmd.Flags().GetString("data")
			payload, err := readPayload(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			sum, err := getTransport(baseURL).Enqueue(cmd.Context(), q, key, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().String("key", "", "Resource key")
	cmd.Flags().String("data", "", "JSON payload, @file or @- for stdin")
	_ = cmd.MarkFlagRequired("queue")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the processing flag and queued entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			snap, err := getTransport(baseURL).Status(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().String("key", "", "Only entries for this resource key")
	return cmd
}

func newStartCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Supply an access token and start draining the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			started, err := getTransport(baseURL).Start(cmd.Context(), token)
			if err != nil {
				return err
			}
			if started {
				fmt.Fprintln(cmd.OutOrStdout(), "started")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not started (no token or a run is already active)")
			}
			return nil
		},
	}
	cmd.Flags().String("token", "", "Access token for the remote store")
	return cmd
}

func newStopCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active run after the current entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := getTransport(baseURL).Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop requested")
			return nil
		},
	}
}

func newPurgeCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove the pending entry of one resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _ := cmd.Flags().GetString("queue")
			key, _ := cmd.Flags().GetString("key")
			if err := getTransport(baseURL).Purge(cmd.Context(), q, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "purged", queue.MakeID(q, key))
			return nil
		},
	}
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().String("key", "", "Resource key")
	_ = cmd.MarkFlagRequired("queue")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newClearCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued entry (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to clear without --confirm")
			}
			if err := getTransport(baseURL).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	cmd.Flags().Bool("confirm", false, "Confirm removal of all entries")
	return cmd
}

func newProcessorsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List queue names with a registered processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := getTransport(baseURL).Processors(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail queue events, or a resource's sync state with --queue and --key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _ := cmd.Flags().GetString("queue")
			key, _ := cmd.Flags().GetString("key")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			t := getTransport(baseURL)
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			printed := 0
			count := func() {
				printed++
				if limit > 0 && printed >= limit {
					cancel()
				}
			}

			if q != "" && key != "" {
				p := projector.New(q, key, func(s projector.State) {
					fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), s)
					count()
				})
				return p.Watch(ctx, &transportSource{ctx: ctx, t: t})
			}

			err := t.Events(ctx, filter, func(ev events.Event) error {
				if err := printJSON(out, ev); err != nil {
					return err
				}
				count()
				if limit > 0 && printed >= limit {
					return errLimitReached
				}
				return nil
			})
			if errors.Is(err, errLimitReached) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("queue", "", "Queue name (with --key: print projected state)")
	cmd.Flags().String("key", "", "Resource key (with --queue: print projected state)")
	cmd.Flags().String("filter", "", "CEL filter over event, queue, key, at_ms, now_ms")
	cmd.Flags().Int("limit", 0, "Stop after N lines (0 = until interrupted)")
	return cmd
}

// transportSource lets the projector follow a remote server: one status call
// and an SSE subscription per listener.
type transportSource struct {
	ctx context.Context
	t   transports.QueueTransport
}

func (s *transportSource) Status(ctx context.Context, resourceKey string) (queue.Snapshot, error) {
	return s.t.Status(ctx, resourceKey)
}

func (s *transportSource) Subscribe(fn func(events.Event)) func() {
	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		_ = s.t.Events(ctx, "", func(ev events.Event) error {
			fn(ev)
			return nil
		})
	}()
	return cancel
}
