package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hrygo/smartsched/plugin/calendar"
)

// NoSlotPolicy decides what FindNextSlot proposes when the bounded search
// comes up empty.
type NoSlotPolicy string

const (
	// NoSlotNone reports no availability and proposes nothing.
	NoSlotNone NoSlotPolicy = "none"
	// NoSlotNaiveNextWeek proposes the same time one week later, but only
	// when that time is itself free.
	NoSlotNaiveNextWeek NoSlotPolicy = "naive_next_week"
)

// SlotConfig bounds the free-slot search.
type SlotConfig struct {
	BusinessStartHour int          // default 9
	BusinessEndHour   int          // default 18
	MaxDays           int          // default 7
	OnNoSlotFound     NoSlotPolicy // default NoSlotNone
}

// DefaultSlotConfig returns the default search bounds.
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		BusinessStartHour: 9,
		BusinessEndHour:   18,
		MaxDays:           7,
		OnNoSlotFound:     NoSlotNone,
	}
}

// Slot is a proposed free period.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotFinder scans the calendar for the first gap that fits a duration.
type SlotFinder struct {
	cal calendar.Service
	cfg SlotConfig
}

// NewSlotFinder creates a slot finder. Zero config fields take defaults.
func NewSlotFinder(cal calendar.Service, cfg SlotConfig) *SlotFinder {
	def := DefaultSlotConfig()
	if cfg.BusinessStartHour == 0 {
		cfg.BusinessStartHour = def.BusinessStartHour
	}
	if cfg.BusinessEndHour == 0 {
		cfg.BusinessEndHour = def.BusinessEndHour
	}
	if cfg.MaxDays == 0 {
		cfg.MaxDays = def.MaxDays
	}
	if cfg.OnNoSlotFound == "" {
		cfg.OnNoSlotFound = def.OnNoSlotFound
	}
	return &SlotFinder{cal: cal, cfg: cfg}
}

// FindNextSlot returns the earliest business-hours gap of at least duration
// starting no earlier than after. The search is bounded to MaxDays days; a
// found=false result means the bound was exhausted and the configured
// no-slot policy produced nothing either.
func (f *SlotFinder) FindNextSlot(ctx context.Context, userID string, after time.Time, duration time.Duration) (Slot, bool, error) {
	if duration <= 0 {
		duration = time.Hour
	}
	loc := after.Location()

	for day := 0; day < f.cfg.MaxDays; day++ {
		base := after.AddDate(0, 0, day)
		dayStart := time.Date(base.Year(), base.Month(), base.Day(), f.cfg.BusinessStartHour, 0, 0, 0, loc)
		dayEnd := time.Date(base.Year(), base.Month(), base.Day(), f.cfg.BusinessEndHour, 0, 0, 0, loc)

		cursor := dayStart
		if day == 0 && after.After(cursor) {
			cursor = after
		}
		if cursor.Add(duration).After(dayEnd) {
			continue
		}

		slot, ok, err := f.scanDay(ctx, userID, cursor, dayStart, dayEnd, duration)
		if err != nil {
			return Slot{}, false, err
		}
		if ok {
			slog.Info("free slot found", "user_id", userID, "start", slot.Start, "searched_days", day+1)
			return slot, true, nil
		}
	}

	return f.applyNoSlotPolicy(ctx, userID, after, duration)
}

// scanDay walks the day's events in order and returns the first gap that
// fits. A day containing an all-day event is considered fully booked.
func (f *SlotFinder) scanDay(ctx context.Context, userID string, cursor, dayStart, dayEnd time.Time, duration time.Duration) (Slot, bool, error) {
	events, err := f.cal.ListEvents(ctx, userID, calendar.Window{Start: dayStart, End: dayEnd})
	if err != nil {
		return Slot{}, false, fmt.Errorf("failed to list events: %w", err)
	}

	var busy []calendar.Event
	for _, ev := range events {
		if !ev.Start.Before(dayEnd) || !ev.End.After(dayStart) {
			continue
		}
		if ev.AllDay {
			return Slot{}, false, nil
		}
		busy = append(busy, ev)
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	for _, ev := range busy {
		if ev.Start.Sub(cursor) >= duration {
			return Slot{Start: cursor, End: cursor.Add(duration)}, true, nil
		}
		if ev.End.After(cursor) {
			cursor = ev.End
		}
	}
	if dayEnd.Sub(cursor) >= duration {
		return Slot{Start: cursor, End: cursor.Add(duration)}, true, nil
	}
	return Slot{}, false, nil
}

func (f *SlotFinder) applyNoSlotPolicy(ctx context.Context, userID string, after time.Time, duration time.Duration) (Slot, bool, error) {
	switch f.cfg.OnNoSlotFound {
	case NoSlotNaiveNextWeek:
		start := after.AddDate(0, 0, 7)
		end := start.Add(duration)
		events, err := f.cal.ListEvents(ctx, userID, calendar.Window{Start: start, End: end})
		if err != nil {
			return Slot{}, false, fmt.Errorf("failed to list events: %w", err)
		}
		for _, ev := range events {
			if ev.Start.Before(end) && ev.End.After(start) {
				return Slot{}, false, nil
			}
		}
		return Slot{Start: start, End: end}, true, nil
	default:
		return Slot{}, false, nil
	}
}
