package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperr "github.com/hrygo/smartsched/internal/errors"
	"github.com/hrygo/smartsched/plugin/calendar"
)

type memStore struct {
	tokens map[string]*oauth2.Token
}

func (m *memStore) Token(_ context.Context, userID string) (*oauth2.Token, error) {
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, assert.AnError
	}
	return tok, nil
}

func (m *memStore) Save(_ context.Context, userID string, tok *oauth2.Token) error {
	m.tokens[userID] = tok
	return nil
}

func validStore(userID string) *memStore {
	return &memStore{tokens: map[string]*oauth2.Token{
		userID: {AccessToken: "token-1", Expiry: time.Now().Add(time.Hour)},
	}}
}

func TestListEvents(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":      "a",
					"summary": "定例会議",
					"start":   map[string]string{"dateTime": "2025-01-02T10:00:00+09:00"},
					"end":     map[string]string{"dateTime": "2025-01-02T11:00:00+09:00"},
				},
				{
					"id":      "b",
					"summary": "創立記念日",
					"start":   map[string]string{"date": "2025-01-02"},
					"end":     map[string]string{"date": "2025-01-03"},
				},
				{
					"id":      "c",
					"summary": "キャンセル済み",
					"status":  "cancelled",
					"start":   map[string]string{"dateTime": "2025-01-02T12:00:00+09:00"},
					"end":     map[string]string{"dateTime": "2025-01-02T13:00:00+09:00"},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL}, validStore("u1"))
	events, err := c.ListEvents(context.Background(), "u1", calendar.Window{
		Start: time.Date(2025, 1, 2, 0, 0, 0, 0, loc),
		End:   time.Date(2025, 1, 3, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "定例会議", events[0].Summary)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, loc), events[0].Start)
	assert.False(t, events[0].AllDay)

	assert.Equal(t, "創立記念日", events[1].Summary)
	assert.True(t, events[1].AllDay)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, loc), events[1].Start)
	assert.Equal(t, 24*time.Hour, events[1].End.Sub(events[1].Start))
}

func TestInsertEvent(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Tokyo")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "会議", body["summary"])
		_ = json.NewEncoder(w).Encode(map[string]string{"htmlLink": "https://calendar.example/e/1"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL}, validStore("u1"))
	link, err := c.InsertEvent(context.Background(), "u1", calendar.EventInput{
		Summary: "会議",
		Start:   time.Date(2025, 1, 2, 15, 0, 0, 0, loc),
		End:     time.Date(2025, 1, 2, 16, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.example/e/1", link)
}

func TestAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL}, validStore("u1"))
	_, err := c.ListEvents(context.Background(), "u1", calendar.Window{Start: time.Now(), End: time.Now().Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, apperr.IsAuth(err))

	// Missing credentials surface the same way.
	c2 := NewClient(Config{APIBase: srv.URL}, &memStore{tokens: map[string]*oauth2.Token{}})
	_, err = c2.ListEvents(context.Background(), "nobody", calendar.Window{Start: time.Now(), End: time.Now().Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, apperr.IsAuth(err))
}

func TestFileCredentialStore(t *testing.T) {
	store, err := NewFileCredentialStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Token(ctx, "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsAuth(err))

	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "def", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, "u1", tok))

	loaded, err := store.Token(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.AccessToken)
	assert.Equal(t, "def", loaded.RefreshToken)

	// Hostile user ids cannot escape the directory.
	require.NoError(t, store.Save(ctx, "../evil", tok))
	_, err = store.Token(ctx, "../evil")
	assert.NoError(t, err)
}
