// Work-request HTTP handlers.
//
// This file exposes REST endpoints for request resources:
//   - POST   /requests               (post a new request)
//   - GET    /requests               (search open requests, paginated)
//   - POST   /requests/{id}/complete (mark an accepted request complete)
//   - DELETE /requests/{id}          (archive / soft delete)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/sysutil"
)

//
// DTOs
//

// CreateRequestRequest is the JSON payload for posting a work request.
type CreateRequestRequest struct {
	// Title names the work to be done (1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Fix leaking kitchen tap"`
	// Description optionally elaborates on the work.
	Description string `json:"description" example:"Single-lever mixer, drips constantly."`
	// Deadline is when the work is due (RFC 3339).
	Deadline time.Time `json:"deadline" binding:"required" example:"2025-10-01T12:00:00Z"`
}

// ListRequestsResponse wraps a page of open requests and pagination info.
type ListRequestsResponse struct {
	Requests   []domain.Request `json:"requests"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Post a new work request
// @Description Creates an open request owned by the current user.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Success     201  {object}  domain.Request
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and deadline required")
		return
	}

	r, err := h.negSvc.CreateRequest(c.Request.Context(), userID(c), req.Title, req.Description, req.Deadline)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRequests godoc
// @ID          listRequests
// @Summary     Search open requests (paginated)
// @Description With mine=true, returns the caller's own requests in any
// @Description status instead of the open marketplace.
// @Tags        Requests
// @Produce     json
// @Param       mine  query  bool  false  "List own requests instead"
// @Success     200  {object}  handlers.ListRequestsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	page, pageSize := clampPagination(c)

	if sysutil.IsTruthy(c.Query("mine")) {
		items, err := h.negSvc.MyRequests(c.Request.Context(), userID(c))
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		ok(c, http.StatusOK, ListRequestsResponse{
			Requests:   items,
			Pagination: paginate(1, pageSize, int64(len(items))),
		})
		return
	}

	items, total, err := h.negSvc.SearchRequests(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{
		Requests:   items,
		Pagination: paginate(page, pageSize, total),
	})
}

// CompleteRequest godoc
// @ID          completeRequest
// @Summary     Mark an accepted request complete
// @Description Moves the request and its accepted offer to complete together.
// @Tags        Requests
// @Produce     json
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse "Request not accepted"
// @Router      /requests/{id}/complete [post]
func (h *Handlers) CompleteRequest(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}
	if err := h.negSvc.MarkRequestComplete(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ArchiveRequest godoc
// @ID          archiveRequest
// @Summary     Archive a request (soft delete)
// @Description Complete requests always archive; open requests archive only
// @Description while no offers exist.
// @Tags        Requests
// @Produce     json
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse "Offers still active"
// @Router      /requests/{id} [delete]
func (h *Handlers) ArchiveRequest(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}
	if err := h.negSvc.ArchiveRequest(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
