// Package calendar defines the provider-neutral calendar surface used by the
// scheduling services.
package calendar

import (
	"context"
	"time"
)

// Window is a half-open [Start, End) query range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Event is a calendar entry as returned by a provider.
type Event struct {
	ID       string
	Summary  string
	Start    time.Time
	End      time.Time
	Location string
	HTMLLink string
	AllDay   bool
}

// EventInput describes an event to be created.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// Service is the calendar operations the schedulers need. Implementations
// return errors with code ErrCodeAuthRequired when the user must reconnect
// their account.
type Service interface {
	// ListEvents returns the user's events overlapping the window, sorted by
	// start time.
	ListEvents(ctx context.Context, userID string, w Window) ([]Event, error)
	// InsertEvent creates the event and returns a link to it.
	InsertEvent(ctx context.Context, userID string, in EventInput) (string, error)
}
