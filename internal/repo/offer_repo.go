// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Offer model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// CreateOffer inserts a new pending offer by bidderID against requestID.
func CreateOffer(ctx context.Context, db *gorm.DB, requestID int64, bidderID string, price int64, note string) (*domain.Offer, error) {
	o := &domain.Offer{
		RequestID: requestID,
		BidderID:  bidderID,
		Price:     price,
		Note:      note,
		Status:    domain.OfferPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOffer fetches an offer by its ID, or ErrNotFound if missing.
func GetOffer(ctx context.Context, db *gorm.DB, id int64) (*domain.Offer, error) {
	var o domain.Offer
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOffersByRequest returns all offers on a request, oldest first.
func ListOffersByRequest(ctx context.Context, db *gorm.DB, requestID int64) ([]domain.Offer, error) {
	var out []domain.Offer
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CountActiveOffers returns the number of non-terminal (pending or accepted)
// offers bidderID holds on requestID. A bidder may hold at most one.
func CountActiveOffers(ctx context.Context, db *gorm.DB, requestID int64, bidderID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ? AND bidder_id = ? AND status IN ?",
			requestID, bidderID, []string{domain.OfferPending, domain.OfferAccepted}).
		Count(&total).Error
	return total, err
}

// CountOffers returns the total number of offers ever placed on requestID,
// regardless of status. Used to decide whether an open request may be
// archived directly.
func CountOffers(ctx context.Context, db *gorm.DB, requestID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ?", requestID).
		Count(&total).Error
	return total, err
}

// UpdateOfferStatus moves an offer from one status to another. The update is
// conditional on the current status; when no row matches (missing offer or a
// lost race), ErrNotFound is returned.
func UpdateOfferStatus(ctx context.Context, db *gorm.DB, id int64, from, to string) error {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
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

// RejectPendingSiblings marks every pending offer on requestID other than
// exceptID as rejected. It returns the number of offers rejected; zero is
// not an error.
func RejectPendingSiblings(ctx context.Context, db *gorm.DB, requestID, exceptID int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Offer{}).
		Where("request_id = ? AND id <> ? AND status = ?", requestID, exceptID, domain.OfferPending).
		Update("status", domain.OfferRejected)
	return res.RowsAffected, res.Error
}
