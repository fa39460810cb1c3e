// Package extract derives structured candidate events from free-form
// conversational text. Two extractor strategies share one output shape: a
// deterministic rule-based parser and an LLM-backed parser, orchestrated by
// Pipeline.
package extract

import "time"

// DefaultTitle is the placeholder used when no title can be resolved.
const DefaultTitle = "予定"

// CandidateEvent is a structured, not-yet-persisted event extracted from
// text. It has no identity: each extraction produces a fresh value that is
// consumed exactly once by calendar registration.
type CandidateEvent struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	AllDay      bool      `json:"all_day"`

	// Confidence is a [0,1] heuristic trust score. It gates automatic vs
	// confirmed registration and is never persisted.
	Confidence float64 `json:"confidence"`
}

// IsZero reports whether the candidate carries no extracted information.
func (c CandidateEvent) IsZero() bool {
	return c.Title == "" && c.Start.IsZero() && c.End.IsZero()
}

// Duration returns the candidate's length.
func (c CandidateEvent) Duration() time.Duration {
	if c.Start.IsZero() || c.End.IsZero() {
		return 0
	}
	return c.End.Sub(c.Start)
}

// Valid is the minimal structural check: non-empty title, both endpoints
// present, and start before end unless the event is all-day.
func (c CandidateEvent) Valid() bool {
	if c.Title == "" || c.Start.IsZero() || c.End.IsZero() {
		return false
	}
	if !c.AllDay && !c.Start.Before(c.End) {
		return false
	}
	return true
}
