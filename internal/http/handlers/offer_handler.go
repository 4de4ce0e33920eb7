// Offer HTTP handlers.
//
// This file exposes REST endpoints for offer resources:
//   - POST   /requests/{id}/offers   (place a bid)
//   - GET    /requests/{id}/offers   (list bids visible to the caller)
//   - POST   /offers/{id}/accept     (accept one bid, reject the rest)
//   - POST   /offers/{id}/withdraw   (retract own pending bid)
//   - DELETE /offers/{id}            (archive a settled bid)
//
// Acceptance carries the observed creation time of the offer as an
// optimistic-concurrency token; a mismatch is reported as a conflict.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
)

//
// DTOs
//

// CreateOfferRequest is the JSON payload for placing a bid.
type CreateOfferRequest struct {
	// Price in minor currency units; must be positive.
	Price int64 `json:"price" binding:"required,gt=0" example:"12500"`
	// Note optionally carries the bidder's terms.
	Note string `json:"note" example:"Can start Monday, includes parts."`
}

// AcceptOfferRequest is the JSON payload for accepting a bid.
type AcceptOfferRequest struct {
	// ObservedCreatedAt is the offer's creation time as the caller last read
	// it (RFC 3339). A mismatch with the stored value refuses the accept.
	ObservedCreatedAt time.Time `json:"observed_created_at" binding:"required" example:"2025-09-14T08:30:00Z"`
}

// ListOffersResponse wraps the offers on a request.
type ListOffersResponse struct {
	Offers []domain.Offer `json:"offers"`
}

//
// Handlers
//

// CreateOffer godoc
// @ID          createOffer
// @Summary     Place a bid on an open request
// @Tags        Offers
// @Accept      json
// @Produce     json
// @Success     201  {object}  domain.Offer
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse "Duplicate active bid or request not open"
// @Router      /requests/{id}/offers [post]
func (h *Handlers) CreateOffer(c *gin.Context) {
	requestID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}
	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price required (positive integer)")
		return
	}

	offer, err := h.negSvc.CreateOffer(c.Request.Context(), userID(c), requestID, req.Price, req.Note)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, offer)
}

// ListOffers godoc
// @ID          listOffers
// @Summary     List the bids on a request
// @Description The request owner sees every bid; other callers see only their own.
// @Tags        Offers
// @Produce     json
// @Success     200  {object}  handlers.ListOffersResponse
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Router      /requests/{id}/offers [get]
func (h *Handlers) ListOffers(c *gin.Context) {
	requestID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}
	offers, err := h.negSvc.ListOffers(c.Request.Context(), userID(c), requestID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListOffersResponse{Offers: offers})
}

// AcceptOffer godoc
// @ID          acceptOffer
// @Summary     Accept a bid
// @Description Atomically accepts the targeted bid, rejects every other
// @Description pending bid on the same request, and moves the request to
// @Description accepted. Guarded by the observed creation time.
// @Tags        Offers
// @Accept      json
// @Produce     json
// @Success     200  {object}  domain.Offer
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Not the request owner"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Stale read or settled negotiation"
// @Router      /offers/{id}/accept [post]
func (h *Handlers) AcceptOffer(c *gin.Context) {
	offerID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a positive integer")
		return
	}
	var req AcceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ObservedCreatedAt.IsZero() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "observed_created_at required (RFC 3339)")
		return
	}

	offer, err := h.negSvc.AcceptOffer(c.Request.Context(), userID(c), offerID, req.ObservedCreatedAt)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, offer)
}

// WithdrawOffer godoc
// @ID          withdrawOffer
// @Summary     Withdraw own pending bid
// @Tags        Offers
// @Produce     json
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Not the bidder"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Offer no longer pending"
// @Router      /offers/{id}/withdraw [post]
func (h *Handlers) WithdrawOffer(c *gin.Context) {
	offerID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a positive integer")
		return
	}
	if err := h.negSvc.WithdrawOffer(c.Request.Context(), userID(c), offerID); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// DeleteOffer godoc
// @ID          deleteOffer
// @Summary     Archive a settled bid (soft delete)
// @Description Complete, rejected, and withdrawn bids move to archived,
// @Description preserving history; bids still in play are refused.
// @Tags        Offers
// @Produce     json
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Not the bidder"
// @Failure     404  {object}  handlers.ErrorResponse "Offer not found"
// @Failure     409  {object}  handlers.ErrorResponse "Offer still in play"
// @Router      /offers/{id} [delete]
func (h *Handlers) DeleteOffer(c *gin.Context) {
	offerID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "offer id must be a positive integer")
		return
	}
	if err := h.negSvc.DeleteOffer(c.Request.Context(), userID(c), offerID); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
