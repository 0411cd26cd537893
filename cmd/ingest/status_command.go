package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ingest/internal/api"
	"ingest/internal/client"
)

type daemonStatusReport struct {
	Running bool              `json:"running"`
	Address string            `json:"address"`
	Status  *api.DaemonStatus `json:"status,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether ingestd is running and its queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c, err := client.New(cfg.API.Bind, cfg.API.Token)
			if err != nil {
				return fmt.Errorf("api address: %w", err)
			}

			report := daemonStatusReport{Address: cfg.API.Bind}
			status, err := c.Status(cmd.Context())
			switch {
			case err == nil:
				report.Running = status.Running
				report.Status = &status
			case client.IsUnavailable(err):
			default:
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if report.Status == nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running at "+cfg.API.Bind, colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d) at %s", status.PID, cfg.API.Bind), colorize))
			if status.StartedAt != "" {
				fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Store", boolKind(status.Store.Reachable), status.Store.Location, colorize))
			fmt.Fprint(out, renderTable([]string{"Status", "Count"}, buildStatusRows(status.Queue), []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
