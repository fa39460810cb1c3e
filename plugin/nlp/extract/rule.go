package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/hrygo/smartsched/plugin/nlp/datetime"
)

// Confidence increments per matched signal. The base is deliberately below
// every acceptance threshold: a text matching nothing stays rejectable.
const (
	baseConfidence     = 0.3
	titleConfidence    = 0.1
	dateConfidence     = 0.2
	timeConfidence     = 0.2
	locationConfidence = 0.1
	allDayConfidence   = 0.1
)

// Title pattern families, first match wins.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`「(.+?)」`),
	regexp.MustCompile(`『(.+?)』`),
	regexp.MustCompile(`(ミーティング|会議|MTG|打ち合わせ|打合せ|面談|商談|説明会|セミナー|発表会|イベント|インタビュー|ランチ|食事|飲み会|研修|講習|勉強会|報告会|相談|プレゼン)`),
	regexp.MustCompile(`について(.+?)(?:する|します|しよう)`),
	regexp.MustCompile(`(.+?)(?:について|を)(?:予定|設定|入れ|行い|行う)`),
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`場所[はが](.+?)(?:で|にて|に|$)`),
	regexp.MustCompile(`(.+?)(?:にて|で)(?:開催|行います|行う|実施)`),
	regexp.MustCompile(`@\s*(\S+)`),
	regexp.MustCompile(`(.+?)(?:に集合|で待ち合わせ)`),
	regexp.MustCompile(`「(.+?)」(?:で|にて)`),
}

// locationKeywords is the literal fallback scan when no pattern matches.
var locationKeywords = []string{
	"会議室", "オフィス", "本社", "支社", "カフェ", "レストラン",
	"ホテル", "オンライン", "Zoom", "Teams", "Google Meet", "Webex",
}

var locationNoise = regexp.MustCompile(`[、。.」「]`)

var allDayKeywords = []string{"終日", "一日中", "丸一日"}

// durationByTitle maps meeting-type keywords to typical durations. Seminars
// carry a longer llmDuration because LLM-extracted seminar titles tend to
// describe full sessions rather than single talks.
var durationByTitle = []struct {
	keywords    []string
	duration    time.Duration
	llmDuration time.Duration
}{
	{[]string{"会議", "ミーティング", "MTG", "mtg"}, time.Hour, 0},
	{[]string{"ランチ", "食事", "飲み会"}, 90 * time.Minute, 0},
	{[]string{"セミナー", "研修", "講習"}, 2 * time.Hour, 3 * time.Hour},
}

// RuleBasedExtractor is the deterministic fallback extractor. It always
// produces some candidate; confidence communicates how much was matched.
type RuleBasedExtractor struct {
	resolver *datetime.Resolver
}

// NewRuleBasedExtractor creates a rule-based extractor resolving times in
// the given location.
func NewRuleBasedExtractor(resolver *datetime.Resolver) *RuleBasedExtractor {
	return &RuleBasedExtractor{resolver: resolver}
}

// Extract derives a candidate event from text relative to now.
func (e *RuleBasedExtractor) Extract(_ context.Context, text string, now time.Time) (CandidateEvent, error) {
	loc := e.resolver.Location()
	now = now.In(loc)

	candidate := CandidateEvent{
		Title:       DefaultTitle,
		Description: strings.TrimSpace(text),
		Confidence:  baseConfidence,
	}

	for _, p := range titlePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			candidate.Title = strings.TrimSpace(m[1])
			candidate.Confidence += titleConfidence
			break
		}
	}

	date, dateFound := e.resolver.ResolveDate(text, now)
	if dateFound {
		candidate.Confidence += dateConfidence
	} else {
		// Tomorrow is the least surprising default for a dateless mention.
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}

	times := e.resolver.ResolveTimes(text)
	if len(times) > 0 {
		candidate.Confidence += timeConfidence
	}

	allDay := containsAny(text, allDayKeywords)
	if allDay {
		candidate.Confidence += allDayConfidence
	}

	switch {
	case allDay, len(times) == 0:
		// 終日 overrides any extracted time-of-day; a missing time also
		// reads as an all-day event on the resolved date.
		candidate.AllDay = true
		candidate.Start = date
		candidate.End = date.AddDate(0, 0, 1)
	case len(times) >= 2:
		candidate.Start = datetime.Combine(date, times[0], loc)
		candidate.End = datetime.Combine(date, times[1], loc)
		// 23時から1時まで spans midnight.
		if !candidate.End.After(candidate.Start) {
			candidate.End = candidate.End.AddDate(0, 0, 1)
		}
	default:
		candidate.Start = datetime.Combine(date, times[0], loc)
		candidate.End = candidate.Start.Add(e.defaultDuration(candidate.Title, text, times))
	}

	if location, ok := e.extractLocation(text); ok {
		candidate.Location = location
		candidate.Confidence += locationConfidence
	}

	if candidate.Confidence > 1 {
		candidate.Confidence = 1
	}
	return candidate, nil
}

// defaultDuration picks an end offset when only a start time was mentioned:
// meeting-type keyword lookup first, then an explicit duration phrase, then
// one hour.
func (e *RuleBasedExtractor) defaultDuration(title, text string, times []datetime.TimeOfDay) time.Duration {
	for _, d := range durationByTitle {
		if containsAny(title, d.keywords) {
			return d.duration
		}
	}

	// Blank out clock-time spans so 15時30分 does not read as a 30分 duration.
	blanked := []byte(text)
	for _, tod := range times {
		for i := tod.Pos; i < tod.End && i < len(blanked); i++ {
			blanked[i] = ' '
		}
	}
	if d, ok := e.resolver.ResolveDuration(string(blanked)); ok {
		return d
	}

	return time.Hour
}

func (e *RuleBasedExtractor) extractLocation(text string) (string, bool) {
	for _, p := range locationPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			location := locationNoise.ReplaceAllString(strings.TrimSpace(m[1]), "")
			if location != "" {
				return location, true
			}
		}
	}
	for _, keyword := range locationKeywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
