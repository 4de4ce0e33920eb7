// Package ws implements the persistent-channel layer: the event envelope
// exchanged with clients, the enumerated topic grammar with its authorization
// policies, and the in-process hub that fans events out to subscribed
// sessions.
package ws

import (
	"fmt"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// Event is the JSON envelope published to subscribed sessions and carried on
// every server→client frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Server→client event types.
const (
	EventMessage     = "message"       // new message on chat/{id}
	EventRead        = "read"          // read receipt on chat/{id}/read
	EventAction      = "messageAction" // edit/delete on chat/{id}/messageAction
	EventInbox       = "inbox"         // personal summary refresh
	EventChatDeleted = "chatDeleted"   // personal deletion notice
	EventSubscribed  = "subscribed"    // subscribe acknowledgment
	EventError       = "error"         // per-frame failure report
)

// MessageData is the payload of an EventMessage: the persisted message with
// its resolved sender identity.
type MessageData struct {
	Message *domain.Message `json:"message"`
	Sender  string          `json:"sender"`
}

// ReadData is the payload of an EventRead. It summarizes a read sweep: which
// chat, and that the reader's unread set for it is now empty.
type ReadData struct {
	ChatID int64 `json:"chat_id"`
	Count  int64 `json:"count"` // messages flipped to read by the sweep
}

// ActionData is the payload of an EventAction. It carries the message id and
// the resulting state, never the identity of the acting party beyond what
// chat membership already discloses.
type ActionData struct {
	MessageID int64  `json:"message_id"`
	Edited    bool   `json:"edited"`
	Deleted   bool   `json:"deleted"`
	Body      string `json:"body,omitempty"` // present after an edit
}

// InboxData is the payload of an EventInbox, letting a session refresh an
// out-of-chat summary (unread badge, preview) without a live subscription to
// the chat stream.
type InboxData struct {
	ChatID  int64  `json:"chat_id"`
	From    string `json:"from"`
	Preview string `json:"preview"`
	Unread  int64  `json:"unread"`
}

// ChatDeletedData is the payload of an EventChatDeleted, telling the other
// member's sessions to evict the chat from their working set.
type ChatDeletedData struct {
	ChatID    int64 `json:"chat_id"`
	RequestID int64 `json:"request_id"`
}

// ErrorData is the payload of an EventError frame. Code uses the same stable
// taxonomy as the HTTP error envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Canonical topic names. Subscribe requests use the client-facing grammar
// (see topic.go); publishers address the canonical forms below.

// ChatTopic names the message stream of a chat.
func ChatTopic(chatID int64) string { return fmt.Sprintf("chat/%d", chatID) }

// ChatReadTopic names the read-receipt stream of a chat.
func ChatReadTopic(chatID int64) string { return fmt.Sprintf("chat/%d/read", chatID) }

// ChatActionTopic names the edit/delete stream of a chat.
func ChatActionTopic(chatID int64) string { return fmt.Sprintf("chat/%d/messageAction", chatID) }

// InboxTopic names an identity's personal summary inbox.
func InboxTopic(identity string) string { return "user/" + identity + "/inbox" }

// ChatDeletedTopic names an identity's personal chat-deleted inbox.
func ChatDeletedTopic(identity string) string { return "user/" + identity + "/chatDeleted" }
