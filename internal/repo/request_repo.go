// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Request
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (also exported in this package as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// CreateRequest inserts a new work request owned by ownerID. CreatedAt is set
// to UTC and the status starts as open.
func CreateRequest(ctx context.Context, db *gorm.DB, ownerID, title, description string, deadline time.Time) (*domain.Request, error) {
	r := &domain.Request{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      domain.RequestOpen,
		Deadline:    deadline,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a request by its ID, or ErrNotFound if missing.
func GetRequest(ctx context.Context, db *gorm.DB, id int64) (*domain.Request, error) {
	var r domain.Request
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountOpenRequests returns the number of requests currently open for bidding.
func CountOpenRequests(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("status = ?", domain.RequestOpen).
		Count(&total).Error
	return total, err
}

// ListOpenRequestsPage returns a paginated slice of open requests, newest
// first. Use CountOpenRequests to obtain the total for pagination metadata.
func ListOpenRequestsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Request, error) {
	var out []domain.Request
	err := db.WithContext(ctx).
		Where("status = ?", domain.RequestOpen).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRequestsByOwner returns all requests posted by ownerID, newest first.
func ListRequestsByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Request, error) {
	var out []domain.Request
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// UpdateRequestStatus moves a request from one status to another. The update
// is conditional on the current status so that concurrent transitions resolve
// deterministically: when no row matches (missing request or a lost race),
// ErrNotFound is returned.
func UpdateRequestStatus(ctx context.Context, db *gorm.DB, id int64, from, to string) error {
	res := db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
