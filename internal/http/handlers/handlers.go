// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the service contracts the handlers depend on and the
// shared wiring/helpers. Handlers are transport-thin: they validate input,
// call application services with the caller's verified identity passed
// explicitly, and translate results into HTTP responses.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NegotiationService defines the request/offer lifecycle operations consumed
// by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type NegotiationService interface {
	// CreateRequest posts a new work request owned by ownerID.
	CreateRequest(ctx context.Context, ownerID, title, description string, deadline time.Time) (*domain.Request, error)
	// SearchRequests returns a page of open requests and the total count.
	SearchRequests(ctx context.Context, page, pageSize int) ([]domain.Request, int64, error)
	// MyRequests returns every request posted by ownerID, any status.
	MyRequests(ctx context.Context, ownerID string) ([]domain.Request, error)
	// ListOffers returns a request's offers visible to identity.
	ListOffers(ctx context.Context, identity string, requestID int64) ([]domain.Offer, error)
	// CreateOffer places a pending offer against a request.
	CreateOffer(ctx context.Context, bidderID string, requestID, price int64, note string) (*domain.Offer, error)
	// AcceptOffer settles a negotiation atomically, guarded by the observed
	// creation time of the offer.
	AcceptOffer(ctx context.Context, callerID string, offerID int64, observed time.Time) (*domain.Offer, error)
	// WithdrawOffer retracts the bidder's own pending offer.
	WithdrawOffer(ctx context.Context, bidderID string, offerID int64) error
	// DeleteOffer soft-deletes a settled offer, preserving history.
	DeleteOffer(ctx context.Context, bidderID string, offerID int64) error
	// MarkRequestComplete moves an accepted request and offer to complete.
	MarkRequestComplete(ctx context.Context, ownerID string, requestID int64) error
	// ArchiveRequest soft-deletes a request.
	ArchiveRequest(ctx context.Context, ownerID string, requestID int64) error
}

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
type ChatService interface {
	// FindOrCreate returns the unique chat for a request, creating it on
	// first contact.
	FindOrCreate(ctx context.Context, identity string, requestID int64) (*domain.Chat, error)
	// Delete removes a chat and its messages, notifying the other member.
	Delete(ctx context.Context, identity string, chatID int64) error
	// ListPage returns a page of the caller's chats with previews and
	// unread counts.
	ListPage(ctx context.Context, identity string, page, pageSize int) ([]services.ChatSummary, int64, error)
	// Stats summarizes the caller's chat list for ETag derivation.
	Stats(ctx context.Context, identity string) (int64, *time.Time, error)
	// History returns a page of a chat's messages, membership checked.
	History(ctx context.Context, identity string, chatID int64, page, pageSize int) ([]domain.Message, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for requests, offers, and chats. It depends
// on abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	negSvc  NegotiationService
	chatSvc ChatService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(negSvc NegotiationService, chatSvc ChatService) *Handlers {
	return &Handlers{negSvc: negSvc, chatSvc: chatSvc}
}

// userID extracts the authenticated identity from Gin context (set by the
// auth middleware). If absent, it falls back to "X-User-ID" header (tests use
// it), and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// pathID parses a positive int64 path parameter; ok=false for anything else.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// paginate computes the metadata block for a list response.
func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failService reports a service error through the standard envelope.
func failService(c *gin.Context, err error) {
	status, code := MapServiceError(err)
	fail(c, status, code, err.Error())
}
