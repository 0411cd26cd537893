package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/api"
	"ingest/internal/records"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and operate the work queue",
	}

	queueCmd.AddCommand(newQueuePollCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueReapCommand(ctx))

	return queueCmd
}

func newQueuePollCommand(ctx *commandContext) *cobra.Command {
	var req api.PollRequest

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Claim READY records as a worker would",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				resp, err := svc.Poll(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Records) == 0 {
					fmt.Fprintln(out, "No records ready")
					return nil
				}
				fmt.Fprint(out, renderTable(recordHeaders, buildRecordRows(resp.Records), recordAligns))
				fmt.Fprintf(out, "Claimed %d record(s)\n", len(resp.Records))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 0, "Maximum records to claim (default from config)")
	cmd.Flags().StringSliceVarP(&req.SupportedSourceTypes, "source-type", "t", nil, "Only claim these source types")
	return cmd
}

type queueHealthReport struct {
	Store       api.StoreStatus        `json:"store"`
	Queue       api.QueueStats         `json:"queue"`
	SourceTypes []api.SourceTypeHealth `json:"sourceTypes"`
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check record store health and per-status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				report := queueHealthReport{
					Store:       svc.StoreStatus(cmd.Context()),
					SourceTypes: svc.SourceTypes(cmd.Context()),
				}
				stats, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				report.Queue = stats

				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Store: %s (%s)\n", report.Store.Location, report.Store.Driver)
				fmt.Fprintln(out, renderStatusLine("Reachable", boolKind(report.Store.Reachable), "", colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity check", boolKind(report.Store.IntegrityCheck), "", colorize))
				fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, fmt.Sprintf("%d", report.Store.SchemaVersion), colorize))
				if report.Store.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, report.Store.Error, colorize))
				}
				if len(report.SourceTypes) == 0 {
					fmt.Fprintln(out, renderStatusLine("Source types", statusInfo, "any", colorize))
				}
				for _, st := range report.SourceTypes {
					kind := statusWarn
					if st.Ready {
						kind = statusOK
					}
					fmt.Fprintln(out, renderStatusLine("Source "+st.Name, kind, st.Detail, colorize))
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, buildStatusRows(report.Queue), []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueReapCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Return stale QUEUED/PROCESSING records to READY",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			window := olderThan
			if window <= 0 {
				window = time.Duration(cfg.Queue.StaleAfterSeconds) * time.Second
			}
			if window <= 0 {
				return fmt.Errorf("no stale window: pass --older-than or set queue.stale_after_seconds")
			}
			return ctx.withStore(func(store *records.Store) error {
				ids, err := store.ResetStale(cmd.Context(), time.Now().Add(-window))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if ids == nil {
						ids = []int64{}
					}
					return writeJSON(cmd, map[string][]int64{"reclaimed": ids})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d record(s) idle for more than %s\n", len(ids), window)
				for _, id := range ids {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Idle time after which a claim is stale (default queue.stale_after_seconds)")
	return cmd
}
