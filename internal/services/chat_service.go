// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of the
// chat keyed 1:1 to a work request: idempotent find-or-create, exactly-two
// membership, listing with previews and unread counts, history access, and
// deletion with explicit message cascade.
//
// Service-level errors (e.g., ErrChatNotFound, ErrNotMember) are returned for
// predictable cases so handlers can map them to transport results
// consistently.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// Publisher delivers post-commit events to channel subscribers. The hub
// implements it; tests substitute a recorder.
type Publisher interface {
	Publish(topic string, ev ws.Event)
}

// ChatSummary is one entry of a member's chat list: the chat plus an
// out-of-chat preview of its latest message and the caller's unread count.
type ChatSummary struct {
	Chat        domain.Chat     `json:"chat"`
	LastMessage *domain.Message `json:"last_message,omitempty"`
	Unread      int64           `json:"unread"`
}

// ChatService provides chat lifecycle operations. It is the only writer of
// Chat rows; message traffic goes through MessageService.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Pub receives chat-deleted notices after the deleting transaction commits.
	Pub Publisher
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB, pub Publisher) *ChatService {
	return &ChatService{DB: db, Pub: pub}
}

// FindOrCreate returns the unique chat bound to requestID, creating it on
// first contact. Creation binds the request's owner and the negotiating
// bidder as the two members and is serialized per request: concurrent first
// contacts cannot create two chats (the unique index on request_id settles
// the race, and the loser returns the winner's chat).
//
// When the caller is the request owner, the counterpart is the bidder of the
// earliest active offer; with no bidders yet there is no candidate
// relationship and ErrNoCandidate is returned. When the caller is a bidder,
// they must hold an active offer on the request.
//
// Fails with ErrRequestNotFound when the request does not exist and with
// ErrNotMember when a chat exists and the caller is not one of its members.
func (s *ChatService) FindOrCreate(ctx context.Context, identity string, requestID int64) (*domain.Chat, error) {
	req, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, mapNotFound(err, ErrRequestNotFound)
	}

	if chat, err := repo.GetChatByRequest(ctx, s.DB, requestID); err == nil {
		if !chat.HasMember(identity) {
			return nil, ErrNotMember
		}
		return chat, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer := req.OwnerID
	bidder := identity
	if identity == req.OwnerID {
		b, err := s.earliestActiveBidder(ctx, requestID)
		if err != nil {
			return nil, err
		}
		bidder = b
	} else {
		active, err := repo.CountActiveOffers(ctx, s.DB, requestID, identity)
		if err != nil {
			return nil, err
		}
		if active == 0 {
			return nil, ErrNotMember
		}
	}

	chat, err := repo.CreateChat(ctx, s.DB, requestID, customer, bidder)
	if err != nil {
		// A concurrent first contact may have won the unique index on
		// request_id; the settled chat is the result either way.
		if existing, rerr := repo.GetChatByRequest(ctx, s.DB, requestID); rerr == nil {
			if !existing.HasMember(identity) {
				return nil, ErrNotMember
			}
			return existing, nil
		}
		return nil, err
	}
	return chat, nil
}

// Delete removes a chat and all of its messages as one transaction (messages
// have no independent existence), then notifies the other member's personal
// deletion inbox so their sessions can evict the chat.
//
// Fails with ErrChatNotFound when the chat does not exist and ErrNotMember
// when the caller is not a member.
func (s *ChatService) Delete(ctx context.Context, identity string, chatID int64) error {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		return mapNotFound(err, ErrChatNotFound)
	}
	if !chat.HasMember(identity) {
		return ErrNotMember
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteMessagesByChat(ctx, tx, chatID); err != nil {
			return err
		}
		return mapNotFound(repo.DeleteChat(ctx, tx, chatID), ErrChatNotFound)
	})
	if err != nil {
		return err
	}

	if s.Pub != nil {
		if other := chat.OtherMember(identity); other != "" {
			s.Pub.Publish(ws.ChatDeletedTopic(other), ws.Event{
				Type: ws.EventChatDeleted,
				Data: ws.ChatDeletedData{ChatID: chat.ID, RequestID: chat.RequestID},
			})
		}
	}
	return nil
}

// IsMember is the pure membership predicate used by the channel authorizer
// and by send/read/action operations. It never errors; unknown chats are
// non-members.
func (s *ChatService) IsMember(ctx context.Context, chatID int64, identity string) bool {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		return false
	}
	return chat.HasMember(identity)
}

// ListPage returns a page of the caller's chats with last-message previews
// and unread counts, plus the total count.
func (s *ChatService) ListPage(ctx context.Context, identity string, page, pageSize int) ([]ChatSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	chats, err := repo.ListChatsByMember(ctx, s.DB, identity)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(chats))

	start := (page - 1) * pageSize
	if start >= len(chats) {
		return []ChatSummary{}, total, nil
	}
	end := start + pageSize
	if end > len(chats) {
		end = len(chats)
	}

	out := make([]ChatSummary, 0, end-start)
	for _, c := range chats[start:end] {
		sum := ChatSummary{Chat: c}
		if last, err := repo.LastMessage(ctx, s.DB, c.ID); err == nil {
			sum.LastMessage = last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, err
		}
		unread, err := repo.CountUnread(ctx, s.DB, c.ID, identity)
		if err != nil {
			return nil, 0, err
		}
		sum.Unread = unread
		out = append(out, sum)
	}
	return out, total, nil
}

// Stats summarizes the caller's chat list for cheap change detection: the
// number of chats they belong to and the latest message timestamp across
// them. HTTP handlers derive the list ETag from it.
func (s *ChatService) Stats(ctx context.Context, identity string) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, s.DB, identity)
}

// History returns a page of a chat's messages in send order, membership
// checked. Fails with ErrChatNotFound for unknown chats and ErrNotMember for
// non-members.
func (s *ChatService) History(ctx context.Context, identity string, chatID int64, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, mapNotFound(err, ErrChatNotFound)
	}
	if !chat.HasMember(identity) {
		return nil, 0, ErrNotMember
	}

	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// earliestActiveBidder finds the counterpart for an owner-initiated chat: the
// bidder of the oldest pending or accepted offer on the request.
func (s *ChatService) earliestActiveBidder(ctx context.Context, requestID int64) (string, error) {
	offers, err := repo.ListOffersByRequest(ctx, s.DB, requestID)
	if err != nil {
		return "", err
	}
	for _, o := range offers {
		if o.Status == domain.OfferPending || o.Status == domain.OfferAccepted {
			return o.BidderID, nil
		}
	}
	return "", ErrNoCandidate
}
