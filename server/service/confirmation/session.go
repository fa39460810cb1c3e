// Package confirmation drives the register/conflict/cancel conversation for
// a detected schedule. All state lives in the session store so any server
// instance can continue the conversation.
package confirmation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperr "github.com/hrygo/smartsched/internal/errors"
	"github.com/hrygo/smartsched/plugin/nlp/extract"
	"github.com/hrygo/smartsched/server/service/schedule"
	"github.com/hrygo/smartsched/store/cache"
)

// Sender identifies the conversation a session belongs to. ChannelID equals
// UserID in a one-on-one chat.
type Sender struct {
	UserID      string
	ChannelID   string
	DisplayName string
}

func (s Sender) sessionKey() string {
	return "confirm:" + s.UserID + ":" + s.ChannelID
}

func (s Sender) altKey() string {
	return s.sessionKey() + ":alt"
}

// Session is a pending schedule awaiting a user decision.
type Session struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id"`
	ChannelID string                    `json:"channel_id"`
	Event     extract.CandidateEvent    `json:"event"`
	Conflicts []schedule.ConflictRecord `json:"conflicts,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

func newSession(sender Sender, ev extract.CandidateEvent, now time.Time) Session {
	return Session{
		ID:        uuid.NewString(),
		UserID:    sender.UserID,
		ChannelID: sender.ChannelID,
		Event:     ev,
		CreatedAt: now,
	}
}

// normalize rebinds round-tripped times to loc so registered events carry a
// named zone rather than a bare offset.
func (s *Session) normalize(loc *time.Location) {
	s.Event.Start = s.Event.Start.In(loc)
	s.Event.End = s.Event.End.In(loc)
	for i := range s.Conflicts {
		s.Conflicts[i].Start = s.Conflicts[i].Start.In(loc)
		s.Conflicts[i].End = s.Conflicts[i].End.In(loc)
	}
}

func saveJSON(ctx context.Context, store cache.Store, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, payload, ttl)
}

func loadJSON(ctx context.Context, store cache.Store, key string, v any) error {
	payload, ok := store.Get(ctx, key)
	if !ok {
		return apperr.New(apperr.ErrCodeCacheMiss, "session not found")
	}
	return json.Unmarshal(payload, v)
}
