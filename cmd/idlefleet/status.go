// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/idlefleet/idlefleet/internal/control"
)

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// queryStatus asks a control server for its report; tests replace it.
var queryStatus = control.QueryStatus

func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which accounts of a running fleet are online",
		Long:  `Query the control server of a running fleet over the gRPC health protocol.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 3*time.Second, "how long to wait for the control server")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	fleetCfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if fleetCfg.ControlAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("control_addr is empty, the control server is disabled")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()
	report, err := queryStatus(ctx, fleetCfg.ControlAddr)
	if err != nil {
		return err
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return oops.Code("STATUS_RENDER_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(report))
	return nil
}

// formatStatusTable formats the report as a human-readable table.
func formatStatusTable(report *control.Report) string {
	var buf bytes.Buffer
	fleetState := "not running"
	if report.Fleet {
		fleetState = "running"
	}
	fmt.Fprintf(&buf, "fleet %s, %d/%d accounts online\n\n", fleetState, report.Online(), len(report.Accounts))

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tSTATUS")
	_, _ = fmt.Fprintln(w, "-------\t------")
	for _, a := range report.Accounts {
		state := "offline"
		if a.Serving {
			state = "online"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Name, state)
	}
	_ = w.Flush()
	return buf.String()
}
