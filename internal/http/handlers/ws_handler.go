// Persistent channel endpoint.
//
// This file upgrades GET /ws to a websocket session and runs its read loop.
// Frames on one session are processed one at a time in arrival order, so a
// client's subscribe is fully applied before its next frame is read; sessions
// run concurrently with each other. Failures are reported per frame with the
// same stable code taxonomy as the HTTP envelope and never tear down the
// session.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tbourn/go-market-backend/internal/auth"
	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/sysutil"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// MessageService defines the message fan-out operations driven by channel
// frames.
type MessageService interface {
	// Send persists and fans out a message from senderID into chatID.
	Send(ctx context.Context, senderID string, chatID int64, kind, body, mediaRef string) (*domain.Message, error)
	// MarkRead sweeps the caller's unread messages in a chat.
	MarkRead(ctx context.Context, identity string, chatID int64) (int64, error)
	// ApplyAction edits or deletes a previously sent message.
	ApplyAction(ctx context.Context, identity string, chatID, messageID int64, action, newBody string) (*domain.Message, error)
}

// Client→server frame operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSend        = "send"
	OpMarkRead    = "markRead"
	OpAction      = "messageAction"
)

// ClientFrame is the JSON envelope of every client→server frame.
type ClientFrame struct {
	Op        string `json:"op"`
	Topic     string `json:"topic,omitempty"`      // subscribe / unsubscribe
	ChatID    int64  `json:"chat_id,omitempty"`    // send / markRead / messageAction
	MessageID int64  `json:"message_id,omitempty"` // messageAction
	Kind      string `json:"kind,omitempty"`       // send: text | media
	Body      string `json:"body,omitempty"`       // send / edit
	MediaRef  string `json:"media_ref,omitempty"`  // send
	Action    string `json:"action,omitempty"`     // messageAction: edit | delete
}

// WSHandler serves the persistent channel: it authenticates the upgrade,
// attaches the session to the hub, and dispatches inbound frames.
type WSHandler struct {
	Verifier *auth.Verifier
	Hub      *ws.Hub
	Auth     ws.Authorizer
	Msgs     MessageService
}

// NewWSHandler constructs a WSHandler.
func NewWSHandler(verifier *auth.Verifier, hub *ws.Hub, authz ws.Authorizer, msgs MessageService) *WSHandler {
	return &WSHandler{Verifier: verifier, Hub: hub, Auth: authz, Msgs: msgs}
}

// Connect godoc
// @ID          wsConnect
// @Summary     Open the persistent event channel
// @Description Upgrades to a websocket. The credential travels in the "token"
// @Description query parameter (browser websocket clients cannot set headers);
// @Description the Authorization header is also accepted.
// @Tags        Channel
// @Param       token  query  string  false "Bearer credential"
// @Success     101  {string}  string "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse "Missing or invalid credential"
// @Router      /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	credential := sysutil.FirstNonEmpty(c.Query("token"), c.GetHeader("Authorization"))
	identity, err := h.Verifier.Verify(credential)
	if err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid credential")
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("websocket accept failed")
		return
	}

	sess := h.Hub.AttachConn(identity, conn)
	defer h.Hub.Remove(sess)

	log.Info().Str("identity", identity).Msg("channel session opened")
	h.readLoop(sess, conn)
	log.Info().Str("identity", identity).Msg("channel session closed")
}

// readLoop consumes frames until the connection or session ends. Each frame is
// fully dispatched before the next is read.
func (h *WSHandler) readLoop(sess *ws.Session, conn *websocket.Conn) {
	for {
		var frame ClientFrame
		if err := wsjson.Read(sess.Context(), conn, &frame); err != nil {
			return
		}
		h.dispatch(sess, frame)
	}
}

// dispatch applies one client frame against the session.
func (h *WSHandler) dispatch(sess *ws.Session, frame ClientFrame) {
	ctx := sess.Context()

	switch frame.Op {
	case OpSubscribe:
		canonical, err := h.Auth.Authorize(ctx, sess.Identity, frame.Topic)
		if err != nil {
			sess.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorData{
				Code:    ErrCodeForbidden,
				Message: "subscription denied",
			}})
			return
		}
		h.Hub.Subscribe(sess, canonical)
		sess.Send(ws.Event{Type: ws.EventSubscribed, Data: gin.H{"topic": frame.Topic}})

	case OpUnsubscribe:
		if canonical, err := h.Auth.Authorize(ctx, sess.Identity, frame.Topic); err == nil {
			h.Hub.Unsubscribe(sess, canonical)
		}

	case OpSend:
		if _, err := h.Msgs.Send(ctx, sess.Identity, frame.ChatID, frame.Kind, frame.Body, frame.MediaRef); err != nil {
			h.sendErr(sess, err)
		}

	case OpMarkRead:
		if _, err := h.Msgs.MarkRead(ctx, sess.Identity, frame.ChatID); err != nil {
			h.sendErr(sess, err)
		}

	case OpAction:
		if _, err := h.Msgs.ApplyAction(ctx, sess.Identity, frame.ChatID, frame.MessageID, frame.Action, frame.Body); err != nil {
			h.sendErr(sess, err)
		}

	default:
		sess.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorData{
			Code:    ErrCodeBadRequest,
			Message: "unknown op",
		}})
	}
}

// sendErr reports a per-frame failure without closing the session. Internal
// faults are masked; taxonomy errors carry their own message.
func (h *WSHandler) sendErr(sess *ws.Session, err error) {
	_, code := MapServiceError(err)
	msg := "operation failed"
	if code != ErrCodeInternal {
		msg = err.Error()
	}
	sess.Send(ws.Event{Type: ws.EventError, Data: ws.ErrorData{Code: code, Message: msg}})
}
