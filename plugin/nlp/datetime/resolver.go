// Package datetime resolves relative and fuzzy Japanese time expressions
// ("明日15時", "来週の水曜", "夕方") into absolute timestamps.
package datetime

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Patterns for date/time parsing
var (
	fullDatePattern = regexp.MustCompile(`(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})`)
	monthDayPattern = regexp.MustCompile(`(\d{1,2})月(\d{1,2})日`)
	slashDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
	daysAfterPattern = regexp.MustCompile(`(\d+)日後`)

	nextWeekWeekdayPattern = regexp.MustCompile(`来週の?([月火水木金土日])曜`)
	nextWeekdayPattern     = regexp.MustCompile(`次の([月火水木金土日])曜`)
	thisWeekdayPattern     = regexp.MustCompile(`今週の?([月火水木金土日])曜`)

	// H時M分, H:MM, H：MM with an optional leading 午前/午後 qualifier.
	clockPattern = regexp.MustCompile(`(午前|午後)?\s*(\d{1,2})(?:時|:|：)(\d{1,2})?分?`)

	hoursDurPattern   = regexp.MustCompile(`(\d+)時間(半)?`)
	minutesDurPattern = regexp.MustCompile(`(\d+)分間?`)
)

// relDateOffsets maps relative date keywords to day offsets.
// Ordered because 明後日 must be tested before 明日.
var relDateOffsets = []struct {
	keyword string
	days    int
}{
	{"明後日", 2},
	{"あさって", 2},
	{"明日", 1},
	{"今日", 0},
	{"本日", 0},
	{"再来週", 14},
	{"来週", 7},
}

// periodHours maps time-of-day period keywords to default clock times.
// Ordered because 夜遅く must be tested before 夜.
var periodHours = []struct {
	keyword string
	hour    int
}{
	{"夜遅く", 22},
	{"夕方", 17},
	{"朝", 8},
	{"昼", 12},
	{"夜", 19},
	{"正午", 12},
	{"午前", 10},
	{"午後", 14},
}

// weekdayMap maps Japanese weekday characters to time.Weekday.
var weekdayMap = map[string]time.Weekday{
	"月": time.Monday,
	"火": time.Tuesday,
	"水": time.Wednesday,
	"木": time.Thursday,
	"金": time.Friday,
	"土": time.Saturday,
	"日": time.Sunday,
}

// TimeOfDay is a single time mention found in text.
type TimeOfDay struct {
	Hour   int
	Minute int
	// Pos and End are byte offsets of the match in the source text.
	Pos int
	End int
	// Qualified is true when the mention disambiguates AM/PM itself
	// (午前/午後 prefix, a named period, or an hour >= 13).
	Qualified bool
}

// Resolver resolves date and time expressions relative to a caller-supplied
// reference time. It never consults the wall clock.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver producing times in the given location.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{loc: loc}
}

// Location returns the resolver's location.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// ResolveDate finds the first date expression in text and returns it at
// midnight in the resolver's location. The bool reports whether any date
// expression matched.
func (r *Resolver) ResolveDate(text string, now time.Time) (time.Time, bool) {
	now = now.In(r.loc)
	today := midnight(now, r.loc)

	// Explicit weekday first so that 来週の水曜 does not fall through to
	// the bare 来週 keyword.
	if m := nextWeekWeekdayPattern.FindStringSubmatch(text); m != nil {
		return r.weekdayOfNextWeek(now, weekdayMap[m[1]]), true
	}
	if m := nextWeekdayPattern.FindStringSubmatch(text); m != nil {
		return r.NextWeekday(now, weekdayMap[m[1]], 0), true
	}
	if m := thisWeekdayPattern.FindStringSubmatch(text); m != nil {
		return r.NextWeekday(now, weekdayMap[m[1]], 0), true
	}

	for _, rel := range relDateOffsets {
		if strings.Contains(text, rel.keyword) {
			return today.AddDate(0, 0, rel.days), true
		}
	}

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if validMonthDay(month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc), true
		}
	}
	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if validMonthDay(month, day) {
			return r.dateFromMonthDay(now, month, day), true
		}
	}
	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if validMonthDay(month, day) {
			return r.dateFromMonthDay(now, month, day), true
		}
	}
	if m := daysAfterPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n), true
	}

	return time.Time{}, false
}

// NextWeekday returns the next occurrence of weekday after now, plus
// weeksOffset whole weeks. A target falling on today rolls a week forward.
func (r *Resolver) NextWeekday(now time.Time, weekday time.Weekday, weeksOffset int) time.Time {
	// Monday-based day numbers, matching how people count weeks here.
	current := mondayBased(now.Weekday())
	target := mondayBased(weekday)

	daysAhead := target - current
	if daysAhead <= 0 {
		daysAhead += 7
	}
	daysAhead += 7 * weeksOffset

	return midnight(now, r.loc).AddDate(0, 0, daysAhead)
}

// weekdayOfNextWeek returns the given weekday inside next calendar week
// (Monday-started), regardless of how close the same weekday is this week.
func (r *Resolver) weekdayOfNextWeek(now time.Time, weekday time.Weekday) time.Time {
	current := mondayBased(now.Weekday())
	daysUntilNextMonday := 7 - current
	return midnight(now, r.loc).AddDate(0, 0, daysUntilNextMonday+mondayBased(weekday))
}

// ResolveTimes returns every time mention in text ordered by position.
// A bare clock time with 午後 or PM anywhere earlier in the text is shifted
// to the afternoon.
func (r *Resolver) ResolveTimes(text string) []TimeOfDay {
	var times []TimeOfDay
	taken := make([][2]int, 0, 4)

	upper := strings.ToUpper(text)

	for _, m := range clockPattern.FindAllStringSubmatchIndex(text, -1) {
		// N時間 is a duration, not a clock time.
		if strings.HasSuffix(text[m[0]:m[1]], "時") && strings.HasPrefix(text[m[1]:], "間") {
			continue
		}
		qualifier := submatch(text, m, 1)
		hour, err := strconv.Atoi(submatch(text, m, 2))
		if err != nil || hour > 24 {
			continue
		}
		minute := 0
		if s := submatch(text, m, 3); s != "" {
			minute, _ = strconv.Atoi(s)
			if minute > 59 {
				continue
			}
		}

		qualified := qualifier != "" || hour >= 13
		switch {
		case qualifier == "午後" && hour < 12:
			hour += 12
		case qualifier == "":
			// Scan preceding text for an afternoon marker.
			if hour < 12 && (strings.Contains(text[:m[0]], "午後") || strings.Contains(upper[:m[0]], "PM")) {
				hour += 12
				qualified = true
			}
		}

		times = append(times, TimeOfDay{Hour: hour % 24, Minute: minute, Pos: m[0], End: m[1], Qualified: qualified})
		taken = append(taken, [2]int{m[0], m[1]})
	}

	for _, p := range periodHours {
		idx := strings.Index(text, p.keyword)
		for idx >= 0 {
			end := idx + len(p.keyword)
			if !overlaps(taken, idx, end) {
				times = append(times, TimeOfDay{Hour: p.hour, Pos: idx, End: end, Qualified: true})
				taken = append(taken, [2]int{idx, end})
			}
			next := strings.Index(text[end:], p.keyword)
			if next < 0 {
				break
			}
			idx = end + next
		}
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Pos < times[j].Pos })
	return times
}

// ResolveDuration finds an explicit duration phrase (N時間, N時間半, N分).
// Callers should blank out clock-time spans first so that the 分 of 15時30分
// is not read as a duration.
func (r *Resolver) ResolveDuration(text string) (time.Duration, bool) {
	if m := hoursDurPattern.FindStringSubmatch(text); m != nil {
		hours, _ := strconv.Atoi(m[1])
		d := time.Duration(hours) * time.Hour
		if m[2] != "" {
			d += 30 * time.Minute
		}
		return d, true
	}
	if m := minutesDurPattern.FindStringSubmatch(text); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		return time.Duration(minutes) * time.Minute, true
	}
	return 0, false
}

// Combine joins a calendar date with a time-of-day in the given location.
func Combine(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc)
}

// dateFromMonthDay builds a date from month/day, rolling to next year when
// the day has already passed.
func (r *Resolver) dateFromMonthDay(now time.Time, month, day int) time.Time {
	year := now.Year()
	if month < int(now.Month()) || (month == int(now.Month()) && day < now.Day()) {
		year++
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func mondayBased(w time.Weekday) int {
	if w == time.Sunday {
		return 6
	}
	return int(w) - 1
}

func validMonthDay(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

func submatch(text string, idx []int, n int) string {
	if idx[2*n] < 0 {
		return ""
	}
	return text[idx[2*n]:idx[2*n+1]]
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}
