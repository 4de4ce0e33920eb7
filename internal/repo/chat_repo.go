// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported in this package as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ChatService) which enforces membership rules and the
// one-chat-per-request invariant.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// CreateChat inserts a new chat binding the request owner (customer) and the
// bidder as its two members. The unique index on request_id guarantees at
// most one chat per request; a violation surfaces as a DB error the service
// translates into the already-created chat.
func CreateChat(ctx context.Context, db *gorm.DB, requestID int64, customerID, bidderID string) (*domain.Chat, error) {
	c := &domain.Chat{
		RequestID:  requestID,
		CustomerID: customerID,
		BidderID:   bidderID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetChat fetches a single chat by its ID, or ErrNotFound if missing.
func GetChat(ctx context.Context, db *gorm.DB, id int64) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByRequest fetches the chat bound to requestID, or ErrNotFound when
// no chat has been opened for that request yet.
func GetChatByRequest(ctx context.Context, db *gorm.DB, requestID int64) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("request_id = ?", requestID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChatsByMember returns all chats in which identity participates, most
// recently created first.
func ListChatsByMember(ctx context.Context, db *gorm.DB, identity string) ([]domain.Chat, error) {
	var out []domain.Chat
	err := db.WithContext(ctx).
		Where("customer_id = ? OR bidder_id = ?", identity, identity).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// DeleteMessagesByChat hard-deletes every message belonging to chatID.
// Chat deletion runs this and DeleteChat inside one transaction so that
// messages never outlive their chat.
func DeleteMessagesByChat(ctx context.Context, db *gorm.DB, chatID int64) error {
	return db.WithContext(ctx).
		Unscoped().
		Where("chat_id = ?", chatID).
		Delete(&domain.Message{}).Error
}

// DeleteChat removes the chat row itself. Returns ErrNotFound when the chat
// does not exist.
func DeleteChat(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Chat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ChatsStats returns the number of chats identity participates in and the
// latest message creation time across them. Used to build a weak ETag for
// the chat list endpoint.
func ChatsStats(ctx context.Context, db *gorm.DB, identity string) (int64, *time.Time, error) {
	var count int64
	if err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("customer_id = ? OR bidder_id = ?", identity, identity).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}

	var last domain.Message
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.customer_id = ? OR chats.bidder_id = ?", identity, identity).
		Order("messages.created_at DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return count, nil, nil
		}
		return 0, nil, err
	}
	ts := last.CreatedAt
	return count, &ts, nil
}
