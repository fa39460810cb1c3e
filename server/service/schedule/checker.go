// Package schedule decides whether a proposed event collides with the user's
// calendar and hunts for free slots when it does.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/smartsched/plugin/calendar"
)

// ConflictRecord is one existing event that overlaps a proposed time.
type ConflictRecord struct {
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
	HTMLLink string    `json:"html_link,omitempty"`
	AllDay   bool      `json:"all_day"`
}

// AvailabilityChecker detects overlaps between a proposed event and the
// user's existing calendar entries.
type AvailabilityChecker struct {
	cal calendar.Service
}

// NewAvailabilityChecker creates a new availability checker.
func NewAvailabilityChecker(cal calendar.Service) *AvailabilityChecker {
	return &AvailabilityChecker{cal: cal}
}

// CheckConflicts returns every existing event overlapping [start, end).
// Any overlap at all counts; tentative events are not special-cased.
func (c *AvailabilityChecker) CheckConflicts(ctx context.Context, userID string, start, end time.Time) ([]ConflictRecord, error) {
	events, err := c.cal.ListEvents(ctx, userID, calendar.Window{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var conflicts []ConflictRecord
	for _, ev := range events {
		if ev.Start.Before(end) && ev.End.After(start) {
			conflicts = append(conflicts, ConflictRecord{
				Summary:  ev.Summary,
				Start:    ev.Start,
				End:      ev.End,
				Location: ev.Location,
				HTMLLink: ev.HTMLLink,
				AllDay:   ev.AllDay,
			})
		}
	}

	if len(conflicts) > 0 {
		slog.Info("conflicts detected",
			"user_id", userID,
			"requested_start", start,
			"conflict_count", len(conflicts))
	}
	return conflicts, nil
}
