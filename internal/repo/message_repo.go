// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// CreateMessage inserts a new message row with read=false and edited=false.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID int64, senderID, kind, body, mediaRef string) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Kind:      kind,
		Body:      body,
		MediaRef:  mediaRef,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID, or ErrNotFound if missing.
func GetMessage(ctx context.Context, db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, chatID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ? AND deleted_at IS NULL", chatID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatID int64, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LastMessage returns the most recent message of a chat, or ErrNotFound when
// the chat has no messages. Used for list previews.
func LastMessage(ctx context.Context, db *gorm.DB, chatID int64) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountUnread returns the number of unread messages in chatID not authored
// by identity, i.e. the caller's unread badge count.
func CountUnread(ctx context.Context, db *gorm.DB, chatID int64, identity string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND read = ?", chatID, identity, false).
		Count(&total).Error
	return total, err
}

// MarkMessagesRead flips read=true on every unread message in chatID not
// authored by identity. It returns the number of rows updated; zero rows is
// a no-op, not an error.
func MarkMessagesRead(ctx context.Context, db *gorm.DB, chatID int64, identity string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND read = ?", chatID, identity, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// UpdateMessageBody replaces the body of a message and sets edited=true. The
// update is conditional on the message not being removed, so an edit racing a
// delete can never put content back on a removed row. Returns ErrNotFound
// when the message does not exist or is already removed.
func UpdateMessageBody(ctx context.Context, db *gorm.DB, id int64, body string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND removed = ?", id, false).
		Updates(map[string]any{"body": body, "edited": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemoveMessage blanks the content of a message and flags it removed. The
// row is kept so history keeps its place; removal is terminal, and the update
// is conditional on removed=false so a repeated delete reports ErrNotFound
// instead of silently re-applying.
func RemoveMessage(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND removed = ?", id, false).
		Updates(map[string]any{"body": "", "media_ref": "", "removed": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
