package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// ChatCompleter produces a single chat completion that is expected to be a
// JSON object. Implemented by server/ai.Provider; tests supply stubs.
type ChatCompleter interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

// llmPayload mirrors the JSON contract promised in the extraction prompt.
// Every field is permissive: model output wanders and we repair downstream.
type llmPayload struct {
	Title        string   `json:"title"`
	Date         string   `json:"date"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	AllDay       bool     `json:"all_day"`
	Participants []string `json:"participants"`
	Confidence   float64  `json:"confidence"`
}

const (
	missingFieldPenalty = 0.3
	floorConfidence     = 0.1
)

// LLMExtractor asks a chat model to pull schedule details out of free text.
// It degrades instead of failing: API and parse errors yield a zero candidate
// with a confidence low enough for the pipeline to fall through.
type LLMExtractor struct {
	chat ChatCompleter
	loc  *time.Location
}

func NewLLMExtractor(chat ChatCompleter, loc *time.Location) *LLMExtractor {
	if loc == nil {
		loc = time.Local
	}
	return &LLMExtractor{chat: chat, loc: loc}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, now time.Time) (CandidateEvent, error) {
	now = now.In(e.loc)

	raw, err := e.chat.ChatJSON(ctx, extractionSystemPrompt, buildExtractionPrompt(text, now))
	if err != nil {
		slog.Warn("llm extraction call failed", "error", err)
		return CandidateEvent{}, nil
	}

	var payload llmPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		slog.Warn("llm extraction returned unparseable JSON", "error", err)
		return CandidateEvent{Confidence: floorConfidence}, nil
	}

	return e.toCandidate(payload, now), nil
}

// toCandidate converts the raw payload into a CandidateEvent, penalizing the
// reported confidence for each missing required field and repairing whatever
// the model got structurally wrong.
func (e *LLMExtractor) toCandidate(p llmPayload, now time.Time) CandidateEvent {
	conf := p.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	for _, missing := range []bool{p.Title == "", p.Date == "", p.StartTime == "" && !p.AllDay} {
		if missing {
			conf -= missingFieldPenalty
		}
	}
	if conf < floorConfidence {
		conf = floorConfidence
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DefaultTitle
	}

	day, err := time.ParseInLocation("2006-01-02", p.Date, e.loc)
	if err != nil {
		day = now.AddDate(0, 0, 1)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, e.loc)

	ev := CandidateEvent{
		Title:      title,
		Location:   strings.TrimSpace(p.Location),
		AllDay:     p.AllDay,
		Confidence: conf,
	}

	desc := strings.TrimSpace(p.Description)
	if len(p.Participants) > 0 {
		if desc != "" {
			desc += "\n"
		}
		desc += "参加者: " + strings.Join(p.Participants, ", ")
	}
	ev.Description = desc

	if p.AllDay {
		ev.Start = day
		ev.End = day.AddDate(0, 0, 1)
		return ev
	}

	start, ok := parseClock(p.StartTime)
	if !ok {
		start = clock{10, 0}
	}
	ev.Start = day.Add(time.Duration(start.h)*time.Hour + time.Duration(start.m)*time.Minute)

	if end, ok := parseClock(p.EndTime); ok {
		ev.End = day.Add(time.Duration(end.h)*time.Hour + time.Duration(end.m)*time.Minute)
		if !ev.End.After(ev.Start) {
			// 23時〜1時 spans midnight.
			ev.End = ev.End.AddDate(0, 0, 1)
		}
	} else {
		ev.End = ev.Start.Add(defaultDurationForTitle(title))
	}
	return ev
}

type clock struct{ h, m int }

func parseClock(s string) (clock, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return clock{}, false
	}
	return clock{t.Hour(), t.Minute()}, true
}

func defaultDurationForTitle(title string) time.Duration {
	for _, d := range durationByTitle {
		for _, kw := range d.keywords {
			if strings.Contains(title, kw) {
				if d.llmDuration > 0 {
					return d.llmDuration
				}
				return d.duration
			}
		}
	}
	return time.Hour
}

// stripCodeFence removes a Markdown ```json fence the model sometimes wraps
// its answer in, plus any prose before the first brace.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	return strings.TrimSpace(s)
}
