package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	apperr "github.com/hrygo/smartsched/internal/errors"
)

// Config tunes the extraction cascade. Thresholds are fields rather than
// constants so deployments can trade recall against precision.
type Config struct {
	// AcceptThreshold is the LLM confidence at which the candidate is taken
	// after normalization.
	AcceptThreshold float64
	// FallbackThreshold is the LLM confidence at which a structurally valid
	// candidate is still taken as-is.
	FallbackThreshold float64
	// MaxDescriptionLen truncates oversized descriptions.
	MaxDescriptionLen int
}

func DefaultConfig() Config {
	return Config{
		AcceptThreshold:   0.4,
		FallbackThreshold: 0.3,
		MaxDescriptionLen: 1000,
	}
}

// Extractor is one strategy in the cascade.
type Extractor interface {
	Extract(ctx context.Context, text string, now time.Time) (CandidateEvent, error)
}

// Pipeline runs the LLM extractor first and falls back to rules. Either way
// the returned candidate satisfies: future start, end after start, non-empty
// title, bounded description.
type Pipeline struct {
	cfg  Config
	llm  Extractor
	rule Extractor
	loc  *time.Location
}

func NewPipeline(cfg Config, llm, rule Extractor, loc *time.Location) *Pipeline {
	if cfg.AcceptThreshold == 0 {
		cfg = DefaultConfig()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Pipeline{cfg: cfg, llm: llm, rule: rule, loc: loc}
}

func (p *Pipeline) Extract(ctx context.Context, text string, now time.Time) (CandidateEvent, error) {
	now = now.In(p.loc)

	if p.llm != nil {
		candidate, err := p.llm.Extract(ctx, text, now)
		if err == nil {
			switch {
			case candidate.Confidence >= p.cfg.AcceptThreshold:
				return p.validateAndFix(candidate, now), nil
			case candidate.Confidence >= p.cfg.FallbackThreshold && candidate.Valid():
				return candidate, nil
			}
			slog.Debug("llm candidate below threshold, falling back to rules",
				"confidence", candidate.Confidence)
		} else {
			slog.Warn("llm extractor failed, falling back to rules", "error", err)
		}
	}

	if p.rule == nil {
		return CandidateEvent{}, apperr.New(apperr.ErrCodeExtractionFailed, "no extractor produced a candidate")
	}
	candidate, err := p.rule.Extract(ctx, text, now)
	if err != nil {
		return CandidateEvent{}, apperr.Wrap(apperr.ErrCodeExtractionFailed, "rule extraction failed", err)
	}
	return p.validateAndFix(candidate, now), nil
}

// validateAndFix repairs a candidate so downstream code never sees a past or
// inverted event. It is idempotent: fixing a fixed candidate is a no-op.
func (p *Pipeline) validateAndFix(ev CandidateEvent, now time.Time) CandidateEvent {
	if strings.TrimSpace(ev.Title) == "" {
		ev.Title = DefaultTitle
	}
	ev = p.truncate(ev)

	if ev.AllDay {
		if ev.Start.IsZero() {
			ev.Start = midnightAfter(now, 1, p.loc)
		}
		ev.Start = time.Date(ev.Start.Year(), ev.Start.Month(), ev.Start.Day(), 0, 0, 0, 0, p.loc)
		ev.End = ev.Start.AddDate(0, 0, 1)
		// A stale all-day date shifts to tomorrow; today is fine since the
		// day still contains now.
		if ev.End.Before(now) || ev.End.Equal(now) {
			days := daysBetween(ev.Start, midnightAfter(now, 1, p.loc))
			ev.Start = ev.Start.AddDate(0, 0, days)
			ev.End = ev.End.AddDate(0, 0, days)
		}
		return ev
	}

	if ev.Start.IsZero() {
		ev.Start = nextHalfHour(now)
		// Only a guessed start gets pulled into business hours; an explicit
		// evening or early time stays where the user put it.
		if h := ev.Start.Hour(); h < 9 || h >= 18 {
			ev.Start = time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, p.loc).AddDate(0, 0, 1)
			ev.End = time.Time{}
		}
	}

	if !ev.Start.After(now) {
		if sameDay(ev.Start, now) {
			// Same-day time already passed: push forward by whole hours.
			shift := now.Hour() - ev.Start.Hour() + 1
			if shift < 1 {
				shift = 1
			}
			d := time.Duration(shift) * time.Hour
			ev.Start = ev.Start.Add(d)
			if !ev.End.IsZero() {
				ev.End = ev.End.Add(d)
			}
		} else {
			// Stale date: keep the clock time, move to at least tomorrow.
			days := daysBetween(ev.Start, midnightAfter(now, 1, p.loc))
			ev.Start = ev.Start.AddDate(0, 0, days)
			if !ev.End.IsZero() {
				ev.End = ev.End.AddDate(0, 0, days)
			}
		}
	}

	if ev.End.IsZero() || !ev.End.After(ev.Start) {
		ev.End = ev.Start.Add(time.Hour)
	}
	return ev
}

func (p *Pipeline) truncate(ev CandidateEvent) CandidateEvent {
	max := p.cfg.MaxDescriptionLen
	if max > 3 && len(ev.Description) > max {
		cut := max - 3
		for cut > 0 && !utf8.RuneStart(ev.Description[cut]) {
			cut--
		}
		ev.Description = ev.Description[:cut] + "..."
	}
	return ev
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func midnightAfter(t time.Time, days int, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, days)
}

func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toDay.Sub(fromDay).Hours() / 24)
}

func nextHalfHour(now time.Time) time.Time {
	t := now.Truncate(30 * time.Minute).Add(30 * time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
}
