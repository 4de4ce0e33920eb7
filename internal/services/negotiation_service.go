// Package services – NegotiationService
//
// This file implements the negotiation state machine over requests and
// offers: competing bids, the atomic "accept one, reject the rest"
// transition, completion, and soft deletion. All multi-row transitions run
// inside a single GORM transaction scoped to the affected request, so two
// concurrent accepts on the same request resolve deterministically: one
// commits, the other observes the already-settled state and fails cleanly.
//
// Observability: the accept path is OpenTelemetry-instrumented; spans carry
// the offer and request identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
)

// NegotiationService owns the request/offer lifecycle. Identity is always
// passed in explicitly by the caller; the service never reads it from ambient
// state.
type NegotiationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewNegotiationService constructs a NegotiationService.
func NewNegotiationService(db *gorm.DB) *NegotiationService {
	return &NegotiationService{DB: db}
}

// CreateRequest posts a new work request owned by ownerID, open for bidding.
func (s *NegotiationService) CreateRequest(ctx context.Context, ownerID, title, description string, deadline time.Time) (*domain.Request, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled request"
	}
	return repo.CreateRequest(ctx, s.DB, ownerID, title, strings.TrimSpace(description), deadline)
}

// SearchRequests returns a page of open requests and the total count.
func (s *NegotiationService) SearchRequests(ctx context.Context, page, pageSize int) ([]domain.Request, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountOpenRequests(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Request{}, 0, nil
	}

	items, err := repo.ListOpenRequestsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// MyRequests returns every request posted by ownerID, newest first,
// regardless of status.
func (s *NegotiationService) MyRequests(ctx context.Context, ownerID string) ([]domain.Request, error) {
	return repo.ListRequestsByOwner(ctx, s.DB, ownerID)
}

// ListOffers returns the offers on a request. The request owner sees all of
// them; any other identity sees only its own.
func (s *NegotiationService) ListOffers(ctx context.Context, identity string, requestID int64) ([]domain.Offer, error) {
	req, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, mapNotFound(err, ErrRequestNotFound)
	}
	offers, err := repo.ListOffersByRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, err
	}
	if identity == req.OwnerID {
		return offers, nil
	}
	own := offers[:0]
	for _, o := range offers {
		if o.BidderID == identity {
			own = append(own, o)
		}
	}
	return own, nil
}

// CreateOffer places a pending offer by bidderID against requestID.
//
// Fails with ErrRequestNotFound when the request does not exist, with
// ErrRequestState when it is no longer open, and with ErrDuplicateOffer when
// the bidder already holds a pending or accepted offer on it.
func (s *NegotiationService) CreateOffer(ctx context.Context, bidderID string, requestID, price int64, note string) (*domain.Offer, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	var offer *domain.Offer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			return mapNotFound(err, ErrRequestNotFound)
		}
		if req.Status != domain.RequestOpen {
			return ErrRequestState
		}
		active, err := repo.CountActiveOffers(ctx, tx, requestID, bidderID)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrDuplicateOffer
		}
		offer, err = repo.CreateOffer(ctx, tx, requestID, bidderID, price, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// AcceptOffer settles the negotiation on an offer's request: the targeted
// offer becomes accepted, every other pending offer on the same request
// becomes rejected, and the request becomes accepted — all as one atomic
// commit. Partial application is never observable.
//
// observed is the offer creation time as the caller last read it, acting as
// an optimistic-concurrency token: a mismatch refuses the accept with
// ErrStaleOffer rather than silently operating on stale data. Only the
// request owner may accept.
func (s *NegotiationService) AcceptOffer(ctx context.Context, callerID string, offerID int64, observed time.Time) (*domain.Offer, error) {
	tr := otel.Tracer("services/NegotiationService")
	ctx, span := tr.Start(ctx, "AcceptOffer",
		trace.WithAttributes(attribute.Int64("offer.id", offerID)),
	)
	defer span.End()

	var accepted *domain.Offer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		offer, err := repo.GetOffer(ctx, tx, offerID)
		if err != nil {
			return mapNotFound(err, ErrOfferNotFound)
		}
		req, err := repo.GetRequest(ctx, tx, offer.RequestID)
		if err != nil {
			return mapNotFound(err, ErrRequestNotFound)
		}
		span.SetAttributes(attribute.Int64("request.id", req.ID))

		if callerID != req.OwnerID {
			return ErrNotOwner
		}
		if !offer.CreatedAt.Equal(observed) {
			return ErrStaleOffer
		}
		if offer.Status != domain.OfferPending {
			return ErrOfferState
		}

		if err := repo.UpdateOfferStatus(ctx, tx, offerID, domain.OfferPending, domain.OfferAccepted); err != nil {
			return mapNotFound(err, ErrOfferState)
		}
		if _, err := repo.RejectPendingSiblings(ctx, tx, offer.RequestID, offerID); err != nil {
			return err
		}
		if err := repo.UpdateRequestStatus(ctx, tx, offer.RequestID, domain.RequestOpen, domain.RequestAccepted); err != nil {
			// Request already moved past open: a concurrent accept won.
			return mapNotFound(err, ErrRequestState)
		}

		offer.Status = domain.OfferAccepted
		accepted = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// WithdrawOffer moves the bidder's own pending offer to withdrawn. Siblings
// are unaffected.
func (s *NegotiationService) WithdrawOffer(ctx context.Context, bidderID string, offerID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		offer, err := repo.GetOffer(ctx, tx, offerID)
		if err != nil {
			return mapNotFound(err, ErrOfferNotFound)
		}
		if offer.BidderID != bidderID {
			return ErrNotBidder
		}
		if offer.Status != domain.OfferPending {
			return ErrOfferState
		}
		return mapNotFound(
			repo.UpdateOfferStatus(ctx, tx, offerID, domain.OfferPending, domain.OfferWithdrawn),
			ErrOfferState,
		)
	})
}

// DeleteOffer soft-deletes the bidder's own offer. Complete, rejected, and
// withdrawn offers move to archived, preserving history; anything still in
// play is refused with ErrOfferState.
func (s *NegotiationService) DeleteOffer(ctx context.Context, bidderID string, offerID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		offer, err := repo.GetOffer(ctx, tx, offerID)
		if err != nil {
			return mapNotFound(err, ErrOfferNotFound)
		}
		if offer.BidderID != bidderID {
			return ErrNotBidder
		}
		switch offer.Status {
		case domain.OfferComplete, domain.OfferRejected, domain.OfferWithdrawn:
			return mapNotFound(
				repo.UpdateOfferStatus(ctx, tx, offerID, offer.Status, domain.OfferArchived),
				ErrOfferState,
			)
		}
		return ErrOfferState
	})
}

// MarkRequestComplete moves an accepted request and its accepted offer to
// complete together. Only the request owner may complete.
func (s *NegotiationService) MarkRequestComplete(ctx context.Context, ownerID string, requestID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			return mapNotFound(err, ErrRequestNotFound)
		}
		if req.OwnerID != ownerID {
			return ErrNotOwner
		}
		if req.Status != domain.RequestAccepted {
			return ErrRequestState
		}

		offers, err := repo.ListOffersByRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		for _, o := range offers {
			if o.Status == domain.OfferAccepted {
				if err := repo.UpdateOfferStatus(ctx, tx, o.ID, domain.OfferAccepted, domain.OfferComplete); err != nil {
					return mapNotFound(err, ErrOfferState)
				}
			}
		}
		return mapNotFound(
			repo.UpdateRequestStatus(ctx, tx, requestID, domain.RequestAccepted, domain.RequestComplete),
			ErrRequestState,
		)
	})
}

// ArchiveRequest soft-deletes a request. Complete requests always archive;
// open requests archive only while no offers exist. Archiving is refused with
// ErrRequestState while active offers exist.
func (s *NegotiationService) ArchiveRequest(ctx context.Context, ownerID string, requestID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			return mapNotFound(err, ErrRequestNotFound)
		}
		if req.OwnerID != ownerID {
			return ErrNotOwner
		}
		switch req.Status {
		case domain.RequestComplete:
			return mapNotFound(
				repo.UpdateRequestStatus(ctx, tx, requestID, domain.RequestComplete, domain.RequestArchived),
				ErrRequestState,
			)
		case domain.RequestOpen:
			n, err := repo.CountOffers(ctx, tx, requestID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrRequestState
			}
			return mapNotFound(
				repo.UpdateRequestStatus(ctx, tx, requestID, domain.RequestOpen, domain.RequestArchived),
				ErrRequestState,
			)
		}
		return ErrRequestState
	})
}

// mapNotFound translates gorm.ErrRecordNotFound into a service-level
// sentinel, passing other errors through unchanged.
func mapNotFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
