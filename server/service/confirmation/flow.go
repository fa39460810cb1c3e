package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperr "github.com/hrygo/smartsched/internal/errors"
	"github.com/hrygo/smartsched/plugin/calendar"
	"github.com/hrygo/smartsched/plugin/nlp/extract"
	"github.com/hrygo/smartsched/server/internal/retry"
	"github.com/hrygo/smartsched/server/service/schedule"
	"github.com/hrygo/smartsched/store/cache"
)

// ConflictChecker reports existing events overlapping a proposed time.
type ConflictChecker interface {
	CheckConflicts(ctx context.Context, userID string, start, end time.Time) ([]schedule.ConflictRecord, error)
}

// SlotProposer finds the next free slot for an event that conflicted.
type SlotProposer interface {
	FindNextSlot(ctx context.Context, userID string, after time.Time, duration time.Duration) (schedule.Slot, bool, error)
}

// Registrar creates the confirmed event on the user's calendar.
type Registrar interface {
	InsertEvent(ctx context.Context, userID string, in calendar.EventInput) (string, error)
}

// Reply is platform-neutral response content. The webhook layer renders it.
type Reply struct {
	Text string `json:"text"`
	// Ignored means the message did not look like a schedule and no reply
	// should be sent.
	Ignored bool `json:"ignored,omitempty"`
	// AwaitingDecision means a session is open and a command is expected.
	AwaitingDecision bool `json:"awaiting_decision,omitempty"`
	// Registered carries the created event link.
	Registered bool   `json:"registered,omitempty"`
	EventLink  string `json:"event_link,omitempty"`
	// NeedsAuth asks the user to reconnect their calendar.
	NeedsAuth bool `json:"needs_auth,omitempty"`
}

// Config tunes the flow.
type Config struct {
	// MinConfidence gates which messages open a confirmation at all.
	MinConfidence float64
	// SessionTTL bounds how long a pending decision stays valid.
	SessionTTL time.Duration
	// MaxConflictsShown caps the conflict list in a reply.
	MaxConflictsShown int
	// Location rebinds session times after a cache round trip. JSON keeps
	// the UTC offset but loses the zone name the calendar API needs.
	Location *time.Location
	// RegisterRetry bounds retries of the calendar insert.
	RegisterRetry retry.Config
}

// DefaultConfig returns the default flow configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.5,
		SessionTTL:        10 * time.Minute,
		MaxConflictsShown: 3,
	}
}

// Flow is the confirmation state machine.
type Flow struct {
	cfg       Config
	extractor extract.Extractor
	checker   ConflictChecker
	slots     SlotProposer
	registrar Registrar
	sessions  cache.Store
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFlow wires the confirmation flow. Zero config fields take defaults.
func NewFlow(cfg Config, extractor extract.Extractor, checker ConflictChecker, slots SlotProposer, registrar Registrar, sessions cache.Store) *Flow {
	def := DefaultConfig()
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxConflictsShown == 0 {
		cfg.MaxConflictsShown = def.MaxConflictsShown
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Flow{
		cfg:       cfg,
		extractor: extractor,
		checker:   checker,
		slots:     slots,
		registrar: registrar,
		sessions:  sessions,
		now:       time.Now,
		locks:     map[string]*sync.Mutex{},
	}
}

// lockFor serializes commands per conversation so a double-tapped confirm
// cannot register the same event twice.
func (f *Flow) lockFor(sender Sender) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sender.sessionKey()
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	return l
}

// Begin extracts a schedule from a free-form message and opens a session
// when the candidate is convincing enough.
func (f *Flow) Begin(ctx context.Context, sender Sender, text string) (Reply, error) {
	now := f.now()
	ev, err := f.extractor.Extract(ctx, text, now)
	if err != nil {
		return Reply{Ignored: true}, nil
	}
	if ev.Confidence < f.cfg.MinConfidence {
		slog.Debug("message below confidence gate",
			"user_id", sender.UserID, "confidence", ev.Confidence)
		return Reply{Ignored: true}, nil
	}

	session := newSession(sender, ev, now)
	if err := saveJSON(ctx, f.sessions, sender.sessionKey(), session, f.cfg.SessionTTL); err != nil {
		return Reply{}, err
	}
	_ = f.sessions.Delete(ctx, sender.altKey())

	slog.Info("confirmation session opened",
		"session_id", session.ID, "user_id", sender.UserID, "title", ev.Title)
	return Reply{
		Text:             confirmationPrompt(ev),
		AwaitingDecision: true,
	}, nil
}

// Confirm checks the pending event against the calendar and registers it
// when free. On conflict it proposes the next free slot instead.
func (f *Flow) Confirm(ctx context.Context, sender Sender) (Reply, error) {
	l := f.lockFor(sender)
	l.Lock()
	defer l.Unlock()

	var session Session
	if err := loadJSON(ctx, f.sessions, sender.sessionKey(), &session); err != nil {
		if apperr.IsCacheMiss(err) {
			return Reply{Text: "予定情報が見つかりませんでした。もう一度予定を送ってください。"}, nil
		}
		return Reply{}, err
	}
	session.normalize(f.cfg.Location)

	conflicts, err := f.checker.CheckConflicts(ctx, sender.UserID, session.Event.Start, session.Event.End)
	if err != nil {
		return f.errorReply(err), nil
	}
	if len(conflicts) == 0 {
		return f.register(ctx, sender, session.Event)
	}

	session.Conflicts = conflicts
	if err := saveJSON(ctx, f.sessions, sender.sessionKey(), session, f.cfg.SessionTTL); err != nil {
		return Reply{}, err
	}

	var alternative *schedule.Slot
	slot, found, err := f.slots.FindNextSlot(ctx, sender.UserID, session.Event.Start, session.Event.Duration())
	if err != nil {
		slog.Warn("alternative slot search failed", "user_id", sender.UserID, "error", err)
	} else if found {
		alternative = &slot
		if err := saveJSON(ctx, f.sessions, sender.altKey(), slot, f.cfg.SessionTTL); err != nil {
			return Reply{}, err
		}
	}

	return Reply{
		Text:             conflictPrompt(session.Event, conflicts, alternative, f.cfg.MaxConflictsShown),
		AwaitingDecision: true,
	}, nil
}

// Force registers the pending event even though conflicts were shown.
func (f *Flow) Force(ctx context.Context, sender Sender) (Reply, error) {
	l := f.lockFor(sender)
	l.Lock()
	defer l.Unlock()

	var session Session
	if err := loadJSON(ctx, f.sessions, sender.sessionKey(), &session); err != nil {
		if apperr.IsCacheMiss(err) {
			return Reply{Text: "予定情報が見つかりませんでした。もう一度予定を送ってください。"}, nil
		}
		return Reply{}, err
	}
	session.normalize(f.cfg.Location)
	return f.register(ctx, sender, session.Event)
}

// UseAlternative registers the proposed alternative slot with the pending
// event's content.
func (f *Flow) UseAlternative(ctx context.Context, sender Sender) (Reply, error) {
	l := f.lockFor(sender)
	l.Lock()
	defer l.Unlock()

	var session Session
	if err := loadJSON(ctx, f.sessions, sender.sessionKey(), &session); err != nil {
		if apperr.IsCacheMiss(err) {
			return Reply{Text: "予定情報が見つかりませんでした。もう一度予定を送ってください。"}, nil
		}
		return Reply{}, err
	}
	session.normalize(f.cfg.Location)
	var slot schedule.Slot
	if err := loadJSON(ctx, f.sessions, sender.altKey(), &slot); err != nil {
		if apperr.IsCacheMiss(err) {
			return Reply{Text: "代替案の情報が見つかりませんでした。もう一度予定を送ってください。"}, nil
		}
		return Reply{}, err
	}
	slot.Start = slot.Start.In(f.cfg.Location)
	slot.End = slot.End.In(f.cfg.Location)

	ev := session.Event
	ev.Start = slot.Start
	ev.End = slot.End
	ev.AllDay = false
	return f.register(ctx, sender, ev)
}

// Cancel discards the pending session. Cancelling an already-expired
// session is fine.
func (f *Flow) Cancel(ctx context.Context, sender Sender) (Reply, error) {
	l := f.lockFor(sender)
	l.Lock()
	defer l.Unlock()

	_ = f.sessions.Delete(ctx, sender.sessionKey())
	_ = f.sessions.Delete(ctx, sender.altKey())
	return Reply{Text: "予定の登録をキャンセルしました。"}, nil
}

// register creates the event, clears the session on success and keeps it on
// failure so the user can retry.
func (f *Flow) register(ctx context.Context, sender Sender, ev extract.CandidateEvent) (Reply, error) {
	in := calendar.EventInput{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
	}
	// Transient calendar failures are retried; an auth failure never
	// recovers on its own, so it stops the loop immediately.
	var link string
	var authErr error
	err := retry.Do(ctx, f.cfg.RegisterRetry, func() error {
		var insErr error
		link, insErr = f.registrar.InsertEvent(ctx, sender.UserID, in)
		if apperr.IsAuth(insErr) {
			authErr = insErr
			return nil
		}
		return insErr
	})
	if authErr != nil {
		err = authErr
	}
	if err != nil {
		slog.Error("event registration failed",
			"user_id", sender.UserID, "title", ev.Title, "error", err)
		return f.errorReply(err), nil
	}

	_ = f.sessions.Delete(ctx, sender.sessionKey())
	_ = f.sessions.Delete(ctx, sender.altKey())

	slog.Info("event registered",
		"user_id", sender.UserID, "title", ev.Title, "start", ev.Start)
	return Reply{
		Text:       fmt.Sprintf("予定を登録しました。\n%s\n%s", summarizeEvent(ev), link),
		Registered: true,
		EventLink:  link,
	}, nil
}

func (f *Flow) errorReply(err error) Reply {
	if apperr.IsAuth(err) {
		return Reply{
			Text:      "Googleカレンダーへのアクセス権限が必要です。再認証をお願いします。",
			NeedsAuth: true,
		}
	}
	return Reply{Text: "カレンダーへのアクセスに失敗しました。しばらくしてから再度お試しください。"}
}

func confirmationPrompt(ev extract.CandidateEvent) string {
	var b strings.Builder
	b.WriteString("以下の予定を検出しました。\n")
	b.WriteString(summarizeEvent(ev))
	b.WriteString("\n登録する場合は「はい」、やめる場合は「キャンセル」と送ってください。")
	return b.String()
}

func conflictPrompt(ev extract.CandidateEvent, conflicts []schedule.ConflictRecord, alternative *schedule.Slot, maxShown int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "「%s」の時間帯に既存の予定があります。\n", ev.Title)

	shown := conflicts
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	for _, c := range shown {
		b.WriteString("・")
		b.WriteString(summarizeConflict(c))
		b.WriteString("\n")
	}
	if rest := len(conflicts) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "ほか%d件\n", rest)
	}

	if alternative != nil {
		fmt.Fprintf(&b, "空いている時間: %s\n", formatSpan(alternative.Start, alternative.End, false))
		b.WriteString("「代替案で」でこの時間に登録、「強制登録」でそのまま登録、「キャンセル」で中止できます。")
	} else {
		b.WriteString("直近に空き時間が見つかりませんでした。「強制登録」でそのまま登録、「キャンセル」で中止できます。")
	}
	return b.String()
}

func summarizeEvent(ev extract.CandidateEvent) string {
	s := fmt.Sprintf("📅 %s\n🕐 %s", ev.Title, formatSpan(ev.Start, ev.End, ev.AllDay))
	if ev.Location != "" {
		s += "\n📍 " + ev.Location
	}
	return s
}

func summarizeConflict(c schedule.ConflictRecord) string {
	summary := c.Summary
	if summary == "" {
		summary = "(無題)"
	}
	return fmt.Sprintf("%s %s", formatSpan(c.Start, c.End, c.AllDay), summary)
}

func formatSpan(start, end time.Time, allDay bool) string {
	if allDay {
		return start.Format("1月2日") + "（終日）"
	}
	if start.Year() == end.Year() && start.YearDay() == end.YearDay() {
		return fmt.Sprintf("%s〜%s", start.Format("1月2日 15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s〜%s", start.Format("1月2日 15:04"), end.Format("1月2日 15:04"))
}
