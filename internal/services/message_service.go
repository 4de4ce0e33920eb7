// Package services – MessageService
//
// This file implements MessageService, the fan-out engine for chat traffic:
// it persists sends, read sweeps, and message actions (edit/delete), then
// publishes the resulting events to the per-chat topics and the counterpart's
// personal inbox. Publishing happens strictly after the corresponding write
// commits, so subscribers never observe an event for state that could roll
// back; for a single chat, events are observed in the order the operations
// were accepted.
//
// Observability: Send and ApplyAction are OpenTelemetry-instrumented; spans
// include chat and message identifiers.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// Message actions applied after send.
const (
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// previewRunes caps the inbox preview extracted from a message body.
const previewRunes = 80

// MessageService coordinates message persistence and event fan-out.
type MessageService struct {
	DB  *gorm.DB
	Pub Publisher

	// MaxBodyRunes caps message bodies by rune length.
	MaxBodyRunes int
	// MaxMediaRefLen caps media references by byte length.
	MaxMediaRefLen int
}

// NewMessageService constructs a MessageService with default input bounds.
func NewMessageService(db *gorm.DB, pub Publisher) *MessageService {
	return &MessageService{
		DB:             db,
		Pub:            pub,
		MaxBodyRunes:   4000,
		MaxMediaRefLen: 512,
	}
}

// Send validates and persists a message from senderID into chatID, then
// publishes it on the chat stream and signals the counterpart's personal
// inbox with a refreshed preview and unread count.
//
// Oversized input is rejected before persistence. Fails with ErrChatNotFound
// for unknown chats and ErrNotMember when the sender is not a member.
func (s *MessageService) Send(ctx context.Context, senderID string, chatID int64, kind, body, mediaRef string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(attribute.Int64("chat.id", chatID)),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if err := s.validate(kind, body, mediaRef); err != nil {
		return nil, err
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		return nil, mapNotFound(err, ErrChatNotFound)
	}
	if !chat.HasMember(senderID) {
		return nil, ErrNotMember
	}

	msg, err := repo.CreateMessage(ctx, s.DB, chatID, senderID, kind, body, mediaRef)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.id", msg.ID))

	if s.Pub != nil {
		s.Pub.Publish(ws.ChatTopic(chatID), ws.Event{
			Type: ws.EventMessage,
			Data: ws.MessageData{Message: msg, Sender: senderID},
		})

		other := chat.OtherMember(senderID)
		unread, cerr := repo.CountUnread(ctx, s.DB, chatID, other)
		if cerr != nil {
			unread = 0
		}
		s.Pub.Publish(ws.InboxTopic(other), ws.Event{
			Type: ws.EventInbox,
			Data: ws.InboxData{
				ChatID:  chatID,
				From:    senderID,
				Preview: preview(msg),
				Unread:  unread,
			},
		})
	}
	return msg, nil
}

// MarkRead flips read=true on every message in the chat not authored by
// identity. With nothing to flip it is a no-op, not an error, and no event
// is published, so repeated sweeps produce no duplicate receipts. Otherwise
// a read receipt summarizing the sweep goes out on the chat's read topic.
func (s *MessageService) MarkRead(ctx context.Context, identity string, chatID int64) (int64, error) {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		return 0, mapNotFound(err, ErrChatNotFound)
	}
	if !chat.HasMember(identity) {
		return 0, ErrNotMember
	}

	n, err := repo.MarkMessagesRead(ctx, s.DB, chatID, identity)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.Pub != nil {
		s.Pub.Publish(ws.ChatReadTopic(chatID), ws.Event{
			Type: ws.EventRead,
			Data: ws.ReadData{ChatID: chatID, Count: n},
		})
	}
	return n, nil
}

// ApplyAction applies a post-send mutation to a message. Only the original
// sender may act; edit replaces the body and sets edited, delete blanks the
// content and is terminal. A second action on an already-deleted message
// fails with ErrMessageRemoved. The resulting state is published on the
// chat's messageAction topic.
func (s *MessageService) ApplyAction(ctx context.Context, identity string, chatID, messageID int64, action, newBody string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ApplyAction",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.Int64("message.id", messageID),
			attribute.String("action", action),
		),
	)
	defer span.End()

	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, mapNotFound(err, ErrMessageNotFound)
	}
	if msg.ChatID != chatID {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != identity {
		return nil, ErrNotSender
	}
	if msg.Removed {
		return nil, ErrMessageRemoved
	}

	switch action {
	case ActionEdit:
		newBody = strings.TrimSpace(newBody)
		if newBody == "" {
			return nil, ErrEmptyBody
		}
		if s.MaxBodyRunes > 0 && utf8.RuneCountInString(newBody) > s.MaxBodyRunes {
			return nil, ErrBodyTooLong
		}
		// Zero rows here means a delete committed after the read above;
		// the message is terminal, not missing.
		if err := repo.UpdateMessageBody(ctx, s.DB, messageID, newBody); err != nil {
			return nil, mapNotFound(err, ErrMessageRemoved)
		}
		msg.Body = newBody
		msg.Edited = true
	case ActionDelete:
		if err := repo.RemoveMessage(ctx, s.DB, messageID); err != nil {
			return nil, mapNotFound(err, ErrMessageRemoved)
		}
		msg.Body = ""
		msg.MediaRef = ""
		msg.Removed = true
	default:
		return nil, ErrInvalidKind
	}

	if s.Pub != nil {
		data := ws.ActionData{
			MessageID: msg.ID,
			Edited:    msg.Edited,
			Deleted:   msg.Removed,
		}
		if action == ActionEdit {
			data.Body = msg.Body
		}
		s.Pub.Publish(ws.ChatActionTopic(chatID), ws.Event{Type: ws.EventAction, Data: data})
	}
	return msg, nil
}

// validate applies the input bounds for a send.
func (s *MessageService) validate(kind, body, mediaRef string) error {
	switch kind {
	case domain.MessageText:
		if body == "" {
			return ErrEmptyBody
		}
	case domain.MessageMedia:
		if mediaRef == "" {
			return ErrEmptyBody
		}
	default:
		return ErrInvalidKind
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return ErrBodyTooLong
	}
	if s.MaxMediaRefLen > 0 && len(mediaRef) > s.MaxMediaRefLen {
		return ErrMediaRefTooLong
	}
	return nil
}

// preview derives the inbox preview for a message.
func preview(m *domain.Message) string {
	if m.Kind == domain.MessageMedia && m.Body == "" {
		return "[media]"
	}
	if utf8.RuneCountInString(m.Body) > previewRunes {
		return string([]rune(m.Body)[:previewRunes])
	}
	return m.Body
}
