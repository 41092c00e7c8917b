// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package stats asks the external stats service to refresh an account's
// public profile after it logs on.
package stats

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Refresher posts profile refresh requests. A Refresher without an API key
// is disabled and Refresh is a no-op.
type Refresher struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
}

// NewRefresher creates a Refresher. A nil client uses http.DefaultClient.
func NewRefresher(endpoint, apiKey string, timeout time.Duration, client *http.Client) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Refresher{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
		client:   client,
	}
}

// Enabled reports whether an API key is configured.
func (r *Refresher) Enabled() bool {
	return r != nil && r.apiKey != ""
}

// Refresh posts to <endpoint>/profile/<accountID>/.
func (r *Refresher) Refresh(ctx context.Context, accountID string) error {
	if !r.Enabled() {
		return nil
	}
	if accountID == "" {
		return oops.Code("STATS_NO_ACCOUNT_ID").Errorf("account id unknown")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	target := r.endpoint + "/profile/" + url.PathEscape(accountID) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, http.NoBody)
	if err != nil {
		return oops.Code("STATS_REQUEST_INVALID").With("url", target).Wrap(err)
	}
	req.Header.Set("Authorization", "Token "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return oops.Code("STATS_REQUEST_FAILED").With("account_id", accountID).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return oops.Code("STATS_REQUEST_REJECTED").
			With("account_id", accountID).
			With("status", resp.StatusCode).
			Errorf("stats service answered %s", resp.Status)
	}
	return nil
}
