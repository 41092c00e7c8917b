// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package control

import (
	"context"
	"sort"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AccountHealth is the published status of one account.
type AccountHealth struct {
	Name    string
	Serving bool
}

// Report is the fleet's health as seen through the control server.
type Report struct {
	Fleet    bool
	Accounts []AccountHealth
}

// Online counts the serving accounts.
func (r *Report) Online() int {
	n := 0
	for _, a := range r.Accounts {
		if a.Serving {
			n++
		}
	}
	return n
}

// QueryStatus lists every health service of the control server at addr.
// Accounts are sorted by name.
func QueryStatus(ctx context.Context, addr string) (*Report, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer conn.Close() //nolint:errcheck // best-effort close of a short-lived client

	resp, err := healthpb.NewHealthClient(conn).List(ctx, &healthpb.HealthListRequest{})
	if err != nil {
		return nil, oops.Code("CONTROL_QUERY_FAILED").With("addr", addr).Wrap(err)
	}

	report := &Report{}
	for service, st := range resp.GetStatuses() {
		serving := st.GetStatus() == healthpb.HealthCheckResponse_SERVING
		if service == FleetService {
			report.Fleet = serving
			continue
		}
		if name, ok := accountName(service); ok {
			report.Accounts = append(report.Accounts, AccountHealth{Name: name, Serving: serving})
		}
	}
	sort.Slice(report.Accounts, func(i, j int) bool {
		return report.Accounts[i].Name < report.Accounts[j].Name
	})
	return report, nil
}
