// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package playtime records one summary line per completed online session.
package playtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the local-time format of summary timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Summary describes one completed online session.
type Summary struct {
	Account    string
	Start      time.Time
	End        time.Time
	Activities []string
}

// Seconds is the whole number of seconds the session lasted.
func (s Summary) Seconds() int64 {
	return int64(s.End.Sub(s.Start) / time.Second)
}

// String renders the summary line, without a trailing newline.
func (s Summary) String() string {
	return fmt.Sprintf("[%s] Session Summary (%s - %s) ~ Played for %d seconds: %s",
		s.Account,
		s.Start.Local().Format(TimeLayout),
		s.End.Local().Format(TimeLayout),
		s.Seconds(),
		FormatActivities(s.Activities))
}

// FormatActivities renders activities as `[ 730, 'Custom' ]`: numeric ids
// bare, titles single-quoted, `[]` when empty.
func FormatActivities(activities []string) string {
	if len(activities) == 0 {
		return "[]"
	}
	parts := make([]string, len(activities))
	for i, a := range activities {
		parts[i] = formatActivity(a)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

func formatActivity(a string) string {
	if _, err := strconv.ParseUint(a, 10, 32); err == nil {
		return a
	}
	switch {
	case !strings.Contains(a, "'"):
		return "'" + a + "'"
	case !strings.Contains(a, `"`):
		return `"` + a + `"`
	default:
		return "'" + strings.ReplaceAll(a, "'", `\'`) + "'"
	}
}
