package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/smartsched/plugin/nlp/datetime"
)

type stubExtractor struct {
	ev     CandidateEvent
	err    error
	called bool
}

func (s *stubExtractor) Extract(context.Context, string, time.Time) (CandidateEvent, error) {
	s.called = true
	return s.ev, s.err
}

func futureCandidate(loc *time.Location, conf float64) CandidateEvent {
	return CandidateEvent{
		Title:      "会議",
		Start:      time.Date(2025, 1, 2, 15, 0, 0, 0, loc),
		End:        time.Date(2025, 1, 2, 16, 0, 0, 0, loc),
		Confidence: conf,
	}
}

func TestPipelineThresholds(t *testing.T) {
	loc := jst(t)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, loc)

	t.Run("at accept threshold the llm candidate wins", func(t *testing.T) {
		llm := &stubExtractor{ev: futureCandidate(loc, 0.40)}
		rule := &stubExtractor{ev: futureCandidate(loc, 0.9)}
		p := NewPipeline(DefaultConfig(), llm, rule, loc)

		ev, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.False(t, rule.called)
		assert.Equal(t, "会議", ev.Title)
		assert.InDelta(t, 0.40, ev.Confidence, 1e-9)
	})

	t.Run("just below accept a valid candidate still passes", func(t *testing.T) {
		cand := futureCandidate(loc, 0.39)
		cand.Description = strings.Repeat("a", 1500)
		llm := &stubExtractor{ev: cand}
		rule := &stubExtractor{ev: futureCandidate(loc, 0.9)}
		p := NewPipeline(DefaultConfig(), llm, rule, loc)

		ev, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.False(t, rule.called)
		assert.InDelta(t, 0.39, ev.Confidence, 1e-9)
		// The candidate is taken as-is, normalization does not touch it.
		assert.Len(t, ev.Description, 1500)
	})

	t.Run("just below fallback the rules take over", func(t *testing.T) {
		llm := &stubExtractor{ev: futureCandidate(loc, 0.29)}
		rule := &stubExtractor{ev: futureCandidate(loc, 0.7)}
		p := NewPipeline(DefaultConfig(), llm, rule, loc)

		ev, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.True(t, rule.called)
		assert.InDelta(t, 0.7, ev.Confidence, 1e-9)
	})

	t.Run("invalid mid band candidate falls through", func(t *testing.T) {
		invalid := CandidateEvent{Title: "会議", Confidence: 0.35} // no endpoints
		llm := &stubExtractor{ev: invalid}
		rule := &stubExtractor{ev: futureCandidate(loc, 0.6)}
		p := NewPipeline(DefaultConfig(), llm, rule, loc)

		_, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.True(t, rule.called)
	})

	t.Run("llm error falls back to rules", func(t *testing.T) {
		llm := &stubExtractor{err: errors.New("boom")}
		rule := &stubExtractor{ev: futureCandidate(loc, 0.6)}
		p := NewPipeline(DefaultConfig(), llm, rule, loc)

		ev, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.Equal(t, "会議", ev.Title)
	})

	t.Run("nil llm goes straight to rules", func(t *testing.T) {
		rule := &stubExtractor{ev: futureCandidate(loc, 0.6)}
		p := NewPipeline(DefaultConfig(), nil, rule, loc)

		_, err := p.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.True(t, rule.called)
	})
}

func TestPipelineValidateAndFix(t *testing.T) {
	loc := jst(t)
	now := time.Date(2025, 1, 15, 14, 10, 0, 0, loc)
	p := NewPipeline(DefaultConfig(), nil, nil, loc)

	t.Run("missing start uses next half hour", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{Title: "会議"}, now)
		assert.Equal(t, time.Date(2025, 1, 15, 14, 30, 0, 0, loc), ev.Start)
		assert.Equal(t, ev.Start.Add(time.Hour), ev.End)
	})

	t.Run("explicit evening start is preserved", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title: "飲み会",
			Start: time.Date(2025, 1, 16, 20, 0, 0, 0, loc),
			End:   time.Date(2025, 1, 16, 21, 0, 0, 0, loc),
		}, now)
		assert.Equal(t, time.Date(2025, 1, 16, 20, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 16, 21, 0, 0, 0, loc), ev.End)
	})

	t.Run("guessed start outside business hours moves to next morning", func(t *testing.T) {
		evening := time.Date(2025, 1, 15, 21, 40, 0, 0, loc)
		ev := p.validateAndFix(CandidateEvent{Title: "会議"}, evening)
		assert.Equal(t, time.Date(2025, 1, 16, 10, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 16, 11, 0, 0, 0, loc), ev.End)
	})

	t.Run("same day past time shifts forward", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title: "会議",
			Start: time.Date(2025, 1, 15, 13, 0, 0, 0, loc),
			End:   time.Date(2025, 1, 15, 14, 0, 0, 0, loc),
		}, now)
		// now is 14:10, start was 13:00: shift by 14-13+1 hours
		assert.Equal(t, time.Date(2025, 1, 15, 15, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 15, 16, 0, 0, 0, loc), ev.End)
	})

	t.Run("stale date keeps clock and moves to tomorrow", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title: "会議",
			Start: time.Date(2025, 1, 10, 11, 0, 0, 0, loc),
			End:   time.Date(2025, 1, 10, 12, 0, 0, 0, loc),
		}, now)
		assert.Equal(t, time.Date(2025, 1, 16, 11, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 16, 12, 0, 0, 0, loc), ev.End)
	})

	t.Run("empty title gets the default", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Start: time.Date(2025, 1, 16, 10, 0, 0, 0, loc),
			End:   time.Date(2025, 1, 16, 11, 0, 0, 0, loc),
		}, now)
		assert.Equal(t, DefaultTitle, ev.Title)
	})

	t.Run("all day event covers exactly one day", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title:  "社員旅行",
			Start:  time.Date(2025, 1, 20, 0, 0, 0, 0, loc),
			AllDay: true,
		}, now)
		assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, 24*time.Hour, ev.End.Sub(ev.Start))
	})

	t.Run("all day today is acceptable", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title:  "棚卸し",
			Start:  time.Date(2025, 1, 15, 0, 0, 0, 0, loc),
			AllDay: true,
		}, now)
		assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, loc), ev.Start)
	})

	t.Run("stale all day date moves to tomorrow", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title:  "棚卸し",
			Start:  time.Date(2025, 1, 10, 0, 0, 0, 0, loc),
			AllDay: true,
		}, now)
		assert.Equal(t, time.Date(2025, 1, 16, 0, 0, 0, 0, loc), ev.Start)
	})

	t.Run("long description is truncated", func(t *testing.T) {
		ev := p.validateAndFix(CandidateEvent{
			Title:       "会議",
			Start:       time.Date(2025, 1, 16, 10, 0, 0, 0, loc),
			End:         time.Date(2025, 1, 16, 11, 0, 0, 0, loc),
			Description: strings.Repeat("a", 1500),
		}, now)
		assert.Len(t, ev.Description, 1000)
		assert.True(t, strings.HasSuffix(ev.Description, "..."))
	})

	t.Run("fixing is idempotent", func(t *testing.T) {
		candidates := []CandidateEvent{
			{},
			{Title: "会議", Start: time.Date(2025, 1, 10, 11, 0, 0, 0, loc)},
			{Title: "会議", Start: time.Date(2025, 1, 15, 13, 0, 0, 0, loc), End: time.Date(2025, 1, 15, 13, 30, 0, 0, loc)},
			{Title: "夜会", Start: time.Date(2025, 1, 16, 22, 0, 0, 0, loc)},
			{Title: "旅行", Start: time.Date(2025, 1, 5, 0, 0, 0, 0, loc), AllDay: true},
		}
		for _, c := range candidates {
			once := p.validateAndFix(c, now)
			twice := p.validateAndFix(once, now)
			assert.Equal(t, once, twice)
			assert.True(t, once.End.After(once.Start))
			if !once.AllDay {
				assert.True(t, once.Start.After(now))
			}
		}
	})
}

func TestPipelineKeepsExplicitEveningTime(t *testing.T) {
	loc := jst(t)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, loc)
	rule := NewRuleBasedExtractor(datetime.NewResolver(loc))
	p := NewPipeline(DefaultConfig(), nil, rule, loc)

	ev, err := p.Extract(context.Background(), "明日19時から飲み会", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 19, 0, 0, 0, loc), ev.Start)
	assert.Equal(t, time.Date(2025, 1, 2, 20, 30, 0, 0, loc), ev.End)
}
