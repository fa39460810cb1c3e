// Package webhook is the inbound message boundary. It accepts
// platform-neutral message content, runs the scheduling work in the
// background and pushes replies through a Notifier, so the HTTP response
// returns immediately.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/smartsched/server/service/confirmation"
)

// SenderKind tags where a message came from.
type SenderKind string

const (
	KindUser  SenderKind = "user"
	KindGroup SenderKind = "group"
	KindRoom  SenderKind = "room"
)

// SenderContext is the resolved identity of an inbound message. It is built
// once at the boundary; everything downstream works with it.
type SenderContext struct {
	Kind        SenderKind
	ID          string
	ChannelID   string
	DisplayName string
}

func (s SenderContext) sender() confirmation.Sender {
	return confirmation.Sender{
		UserID:      s.ID,
		ChannelID:   s.ChannelID,
		DisplayName: s.DisplayName,
	}
}

// Notifier delivers a reply back to the conversation. The messaging-platform
// adapter implements it.
type Notifier interface {
	Send(ctx context.Context, to confirmation.Sender, reply confirmation.Reply) error
}

// Authorizer handles the calendar OAuth round trip.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
}

type inboundMessage struct {
	SenderKind  string `json:"sender_kind"`
	SenderID    string `json:"sender_id"`
	ChannelID   string `json:"channel_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
}

// Router exposes the webhook endpoints.
type Router struct {
	flow     *confirmation.Flow
	notifier Notifier
	auth     Authorizer
	timeout  time.Duration
}

// NewRouter creates the webhook router. auth may be nil when OAuth is
// handled elsewhere.
func NewRouter(flow *confirmation.Flow, notifier Notifier, auth Authorizer) *Router {
	return &Router{
		flow:     flow,
		notifier: notifier,
		auth:     auth,
		timeout:  60 * time.Second,
	}
}

// RegisterRoutes mounts the endpoints on the echo group.
func (r *Router) RegisterRoutes(g *echo.Group) {
	g.POST("/messages", r.handleMessage)
	g.POST("/commands/:command", r.handleCommand)
	if r.auth != nil {
		g.GET("/auth/google/start", r.handleAuthStart)
		g.GET("/auth/google/callback", r.handleAuthCallback)
	}
}

func (r *Router) handleMessage(c echo.Context) error {
	var msg inboundMessage
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message payload")
	}
	if msg.SenderID == "" || strings.TrimSpace(msg.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sender_id and text are required")
	}

	sctx := resolveSender(msg)
	requestID := shortuuid.New()

	go r.process(requestID, sctx, msg.Text)

	return c.JSON(http.StatusAccepted, map[string]string{"request_id": requestID})
}

func (r *Router) handleCommand(c echo.Context) error {
	command := c.Param("command")
	if r.dispatch(command) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown command")
	}

	var msg inboundMessage
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message payload")
	}
	if msg.SenderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sender_id is required")
	}

	sctx := resolveSender(msg)
	requestID := shortuuid.New()

	go r.runCommand(requestID, sctx, command)

	return c.JSON(http.StatusAccepted, map[string]string{"request_id": requestID})
}

func (r *Router) handleAuthStart(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return c.JSON(http.StatusOK, map[string]string{"auth_url": r.auth.AuthURL(userID)})
}

func (r *Router) handleAuthCallback(c echo.Context) error {
	state, code := c.QueryParam("state"), c.QueryParam("code")
	if state == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "state and code are required")
	}
	if err := r.auth.Exchange(c.Request().Context(), state, code); err != nil {
		slog.Error("oauth exchange failed", "user_id", state, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "authorization failed")
	}
	return c.String(http.StatusOK, "カレンダー連携が完了しました。チャットに戻って予定を送ってください。")
}

// process classifies the text as a decision command or a new schedule and
// drives the confirmation flow.
func (r *Router) process(requestID string, sctx SenderContext, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	log := slog.With("request_id", requestID, "user_id", sctx.ID, "kind", sctx.Kind)

	var reply confirmation.Reply
	var err error
	if command := classifyCommand(text); command != "" {
		reply, err = r.dispatch(command)(ctx, sctx.sender())
	} else {
		reply, err = r.flow.Begin(ctx, sctx.sender(), text)
	}
	if err != nil {
		log.Error("message processing failed", "error", err)
		return
	}
	if reply.Ignored {
		return
	}

	if err := r.notifier.Send(ctx, sctx.sender(), reply); err != nil {
		log.Error("reply delivery failed", "error", err)
		return
	}
	log.Info("reply delivered", "registered", reply.Registered, "awaiting", reply.AwaitingDecision)
}

func (r *Router) runCommand(requestID string, sctx SenderContext, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	log := slog.With("request_id", requestID, "user_id", sctx.ID, "command", command)

	reply, err := r.dispatch(command)(ctx, sctx.sender())
	if err != nil {
		log.Error("command processing failed", "error", err)
		return
	}
	if err := r.notifier.Send(ctx, sctx.sender(), reply); err != nil {
		log.Error("reply delivery failed", "error", err)
	}
}

// resolveSender tags the sender once. A group or room message keeps its own
// channel id; a direct message shares the user id.
func resolveSender(msg inboundMessage) SenderContext {
	kind := SenderKind(msg.SenderKind)
	switch kind {
	case KindGroup, KindRoom:
	default:
		kind = KindUser
	}

	channel := msg.ChannelID
	if channel == "" {
		channel = msg.SenderID
	}
	return SenderContext{
		Kind:        kind,
		ID:          msg.SenderID,
		ChannelID:   channel,
		DisplayName: msg.DisplayName,
	}
}

// dispatch maps a command name to the flow operation, nil when unknown.
func (r *Router) dispatch(command string) func(context.Context, confirmation.Sender) (confirmation.Reply, error) {
	switch command {
	case "confirm":
		return r.flow.Confirm
	case "force":
		return r.flow.Force
	case "alternative":
		return r.flow.UseAlternative
	case "cancel":
		return r.flow.Cancel
	}
	return nil
}

// classifyCommand maps chat phrasing onto decision commands. An empty result
// means the text is a fresh message.
func classifyCommand(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case text == "はい" || text == "OK" || text == "ok" || text == "登録して":
		return "confirm"
	case strings.HasPrefix(text, "強制"):
		return "force"
	case strings.HasPrefix(text, "代替案"):
		return "alternative"
	case text == "キャンセル" || text == "やめる" || text == "中止":
		return "cancel"
	}
	return ""
}
