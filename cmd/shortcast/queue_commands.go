package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"shortcast/internal/config"
	"shortcast/internal/daemonrun"
	"shortcast/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job store directly",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueRecoverCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, queueStatsView(stats))
				}
				out := cmd.OutOrStdout()
				if stats.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(tableSpec{
					headers: []string{"Status", "Count"},
					aligns:  []columnAlignment{alignLeft, alignRight},
					footer:  []string{"Total", strconv.Itoa(stats.Total)},
				}, buildQueueStatsRows(stats, shouldColorize(out))))
				if stats.OldestQueued != nil {
					fmt.Fprintf(out, "Oldest queued job waiting since %s\n", stats.OldestQueued.Local().Format(displayTimeLayout))
				}
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func buildQueueStatsRows(stats queue.Stats, colorize bool) [][]string {
	rows := make([][]string, 0, len(stats.Counts))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{
			renderStatus(string(status), colorize),
			strconv.Itoa(stats.Counts[status]),
		})
	}
	return rows
}

type queueStatsJSON struct {
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	OldestQueued string         `json:"oldest_queued,omitempty"`
}

func queueStatsView(stats queue.Stats) queueStatsJSON {
	view := queueStatsJSON{Counts: make(map[string]int, len(stats.Counts)), Total: stats.Total}
	for status, count := range stats.Counts {
		view.Counts[string(status)] = count
	}
	if stats.OldestQueued != nil {
		view.OldestQueued = stats.OldestQueued.UTC().Format(time.RFC3339)
	}
	return view
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store *queue.Store) error {
				window := days
				if !cmd.Flags().Changed("days") {
					window = cfg.Retention.Days
				}
				if window < 0 {
					return errors.New("--days must not be negative")
				}
				cutoff := time.Now().UTC().Add(-time.Duration(window) * 24 * time.Hour)
				removed, err := store.PurgeTerminal(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d finished jobs older than %d days\n", removed, window)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (defaults to retention.days)")
	return cmd
}

func newQueueRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Resolve jobs left processing by a daemon that is no longer running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store *queue.Store) error {
				lock := flock.New(cfg.LockPath())
				ok, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire lock: %w", err)
				}
				if !ok {
					if pid, err := daemonrun.ReadPID(cfg); err == nil {
						return fmt.Errorf("a shortcast daemon is running (pid %d); it recovers interrupted jobs on startup", pid)
					}
					return errors.New("a shortcast daemon is running; it recovers interrupted jobs on startup")
				}
				defer lock.Unlock() //nolint:errcheck

				result, err := store.RecoverInterrupted(cmd.Context(), time.Now().UTC())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if result.Total() == 0 {
					fmt.Fprintln(out, "No interrupted jobs")
					return nil
				}
				rows := make([][]string, 0, result.Total())
				colorize := shouldColorize(out)
				for _, id := range result.Requeued {
					rows = append(rows, []string{id, renderStatus(string(queue.StatusQueued), colorize), "resumes on next start"})
				}
				for _, id := range result.Cancelled {
					rows = append(rows, []string{id, renderStatus(string(queue.StatusCancelled), colorize), "cancellation was pending"})
				}
				for _, id := range result.Failed {
					rows = append(rows, []string{id, renderStatus(string(queue.StatusFailed), colorize), "upload interrupted; check the publish target"})
				}
				fmt.Fprint(out, renderTable(tableSpec{
					title:   "Recovered",
					headers: []string{"Job", "Now", "Reason"},
				}, rows))
				return nil
			})
		},
	}
}
