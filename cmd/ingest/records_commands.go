package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ingest/internal/api"
	"ingest/internal/records"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and manage records",
	}

	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsResetCommand(ctx))
	recordsCmd.AddCommand(newRecordsDeleteCommand(ctx))

	return recordsCmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var params api.QueryParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records of a project in id order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				resp, err := svc.Query(cmd.Context(), records.Identity{}, params)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Records) == 0 {
					fmt.Fprintln(out, "No records found")
					return nil
				}
				fmt.Fprint(out, renderTable(recordHeaders, buildRecordRows(resp.Records), recordAligns))
				if resp.LastID > 0 {
					fmt.Fprintf(out, "More records available: --last-id %d\n", resp.LastID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&params.ProjectID, "project", "p", "", "Project id (required)")
	cmd.Flags().StringVarP(&params.UserID, "user", "u", "", "Only records created by this user")
	cmd.Flags().StringVarP(&params.Status, "status", "s", "", "Only records in this status")
	cmd.Flags().IntVarP(&params.Limit, "limit", "n", 50, "Maximum number of records")
	cmd.Flags().Int64Var(&params.LastID, "last-id", 0, "Return records with ids greater than this")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record with its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *api.Service) error {
				rec, err := svc.Describe(cmd.Context(), records.Identity{}, id)
				if err != nil {
					return err
				}
				var logs *api.LogsResponse
				if showLogs && rec.Logs != nil {
					resp, err := svc.Logs(cmd.Context(), records.Identity{}, id)
					if err != nil {
						return err
					}
					logs = &resp
				}
				if ctx.JSONMode() {
					if logs != nil {
						return writeJSON(cmd, struct {
							api.Record
							LogsText string `json:"logsText"`
						}{rec, logs.Logs})
					}
					return writeJSON(cmd, rec)
				}
				renderRecordDetail(cmd, rec)
				if showLogs {
					out := cmd.OutOrStdout()
					if logs == nil {
						fmt.Fprintln(out, "\nNo logs recorded")
					} else {
						fmt.Fprintf(out, "\nLogs:\n%s\n", strings.TrimRight(logs.Logs, "\n"))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showLogs, "logs", false, "Print the record's logs")
	return cmd
}

func renderRecordDetail(cmd *cobra.Command, rec api.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Record %d\n", rec.ID)
	fmt.Fprintf(out, "  Project:     %s\n", rec.ProjectID)
	fmt.Fprintf(out, "  User:        %s\n", rec.UserID)
	fmt.Fprintf(out, "  Source:      %s / %s\n", rec.SourceType, rec.SourceID)
	fmt.Fprintf(out, "  Status:      %s\n", formatStatusLabel(rec.Status))
	fmt.Fprintf(out, "  Revision:    %d\n", rec.Revision)
	fmt.Fprintf(out, "  Message:     %s\n", rec.Message)
	fmt.Fprintf(out, "  Created:     %s\n", formatDisplayTime(rec.CreatedAt))
	fmt.Fprintf(out, "  Modified:    %s\n", formatDisplayTime(rec.ModifiedAt))
	if rec.DeclaredTime != "" {
		fmt.Fprintf(out, "  Declared:    %s\n", rec.DeclaredTime)
	}
	if len(rec.Contents) == 0 {
		fmt.Fprintln(out, "  Contents:    none")
		return
	}
	rows := make([][]string, 0, len(rec.Contents))
	for _, c := range rec.Contents {
		rows = append(rows, []string{c.FileName, c.ContentType, strconv.FormatInt(c.Size, 10), formatDisplayTime(c.CreatedAt)})
	}
	fmt.Fprint(out, renderTable(
		[]string{"File", "Type", "Bytes", "Uploaded"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func newRecordsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Return a record to the start of its lifecycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *api.Service) error {
				rec, err := svc.Reset(cmd.Context(), records.Identity{}, id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %d reset to %s (revision %d)\n", rec.ID, formatStatusLabel(rec.Status), rec.Revision)
				return nil
			})
		},
	}
}

func newRecordsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records with their contents and logs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseRecordID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withService(func(svc *api.Service) error {
				for _, id := range ids {
					err := svc.Delete(cmd.Context(), records.Identity{}, id)
					if errors.Is(err, records.ErrRevisionConflict) {
						return fmt.Errorf("record %d is claimed by a worker; run 'ingest records reset %d' first: %w", id, id, err)
					}
					if err != nil {
						return fmt.Errorf("delete record %d: %w", id, err)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string][]int64{"deleted": ids})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", len(ids))
				return nil
			})
		},
	}
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}
