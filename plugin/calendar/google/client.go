// Package google talks to the Google Calendar v3 REST API with per-user
// OAuth tokens.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	apperr "github.com/hrygo/smartsched/internal/errors"
	"github.com/hrygo/smartsched/plugin/calendar"
)

const (
	defaultAPIBase = "https://www.googleapis.com/calendar/v3"
	calendarScope  = "https://www.googleapis.com/auth/calendar"
)

// CredentialStore persists per-user OAuth tokens.
type CredentialStore interface {
	Token(ctx context.Context, userID string) (*oauth2.Token, error)
	Save(ctx context.Context, userID string, tok *oauth2.Token) error
}

// Config configures the Google Calendar client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// APIBase overrides the API endpoint, used by tests.
	APIBase string
	Timeout time.Duration
}

// Client implements calendar.Service against Google Calendar.
type Client struct {
	oauth   *oauth2.Config
	store   CredentialStore
	http    *http.Client
	apiBase string
	// refresh deduplicates concurrent token refreshes per user.
	refresh singleflight.Group
}

var _ calendar.Service = (*Client)(nil)

func NewClient(cfg Config, store CredentialStore) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendarScope},
			Endpoint:     googleoauth.Endpoint,
		},
		store:   store,
		http:    &http.Client{Timeout: timeout},
		apiBase: apiBase,
	}
}

// AuthURL returns the consent URL a user must visit, with state carrying the
// user identity through the OAuth round trip.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return apperr.Wrap(apperr.ErrCodeAuthRequired, "oauth code exchange failed", err)
	}
	return c.store.Save(ctx, userID, tok)
}

// tokenFor returns a valid token for the user, refreshing through
// singleflight so concurrent requests do not race on the refresh endpoint.
func (c *Client) tokenFor(ctx context.Context, userID string) (*oauth2.Token, error) {
	tok, err := c.store.Token(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeAuthRequired, "no stored credentials", err)
	}
	if tok.Valid() {
		return tok, nil
	}

	v, err, _ := c.refresh.Do(userID, func() (any, error) {
		fresh, err := c.oauth.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrCodeAuthRequired, "token refresh failed", err)
		}
		if err := c.store.Save(ctx, userID, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Wire representations of the v3 events resource.
type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventResource struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Status      string    `json:"status,omitempty"`
}

type eventList struct {
	Items []eventResource `json:"items"`
}

// ListEvents returns the user's events overlapping the window, expanded to
// single instances and sorted by start time.
func (c *Client) ListEvents(ctx context.Context, userID string, w calendar.Window) ([]calendar.Event, error) {
	q := url.Values{}
	q.Set("timeMin", w.Start.Format(time.RFC3339))
	q.Set("timeMax", w.End.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "250")

	var list eventList
	if err := c.do(ctx, userID, http.MethodGet, "/calendars/primary/events?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}

	events := make([]calendar.Event, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev, err := item.toEvent(w.Start.Location())
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// InsertEvent creates the event on the user's primary calendar and returns
// the htmlLink.
func (c *Client) InsertEvent(ctx context.Context, userID string, in calendar.EventInput) (string, error) {
	body := eventResource{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
	}
	if in.AllDay {
		body.Start = eventTime{Date: in.Start.Format("2006-01-02")}
		body.End = eventTime{Date: in.End.Format("2006-01-02")}
	} else {
		tz := in.Start.Location().String()
		body.Start = eventTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: tz}
		body.End = eventTime{DateTime: in.End.Format(time.RFC3339), TimeZone: tz}
	}

	var created eventResource
	if err := c.do(ctx, userID, http.MethodPost, "/calendars/primary/events", body, &created); err != nil {
		return "", err
	}
	return created.HTMLLink, nil
}

func (c *Client) do(ctx context.Context, userID, method, path string, body, out any) error {
	tok, err := c.tokenFor(ctx, userID)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrCodeCalendarAPI, "calendar request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.ErrCodeAuthRequired, fmt.Sprintf("calendar API rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.New(apperr.ErrCodeCalendarAPI, fmt.Sprintf("calendar API error %d: %s", resp.StatusCode, snippet))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r eventResource) toEvent(loc *time.Location) (calendar.Event, error) {
	ev := calendar.Event{
		ID:       r.ID,
		Summary:  r.Summary,
		Location: r.Location,
		HTMLLink: r.HTMLLink,
	}

	switch {
	case r.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, r.Start.DateTime)
		if err != nil {
			return ev, err
		}
		end, err := time.Parse(time.RFC3339, r.End.DateTime)
		if err != nil {
			return ev, err
		}
		ev.Start = start.In(loc)
		ev.End = end.In(loc)
	case r.Start.Date != "":
		start, err := time.ParseInLocation("2006-01-02", r.Start.Date, loc)
		if err != nil {
			return ev, err
		}
		end, err := time.ParseInLocation("2006-01-02", r.End.Date, loc)
		if err != nil {
			return ev, err
		}
		ev.Start = start
		ev.End = end
		ev.AllDay = true
	default:
		return ev, fmt.Errorf("event %s has no start", r.ID)
	}
	return ev, nil
}
