// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - POST   /requests/{id}/chat       (find or create the request's chat)
//   - GET    /chats                    (list, paginated, ETag support)
//   - GET    /chats/{id}/messages      (history, paginated)
//   - DELETE /chats/{id}               (delete chat with its messages)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/services"
)

//
// DTOs
//

// ListChatsResponse wraps a page of chat summaries and pagination information.
type ListChatsResponse struct {
	Chats      []services.ChatSummary `json:"chats"`
	Pagination Pagination             `json:"pagination"`
}

// ChatHistoryResponse wraps a page of a chat's messages.
type ChatHistoryResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// OpenChat godoc
// @ID          openChat
// @Summary     Find or create the chat for a request
// @Description Returns the single chat bound to the request, creating it on
// @Description first contact. Repeated calls return the same chat.
// @Tags        Chats
// @Produce     json
// @Success     200  {object}  domain.Chat
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Caller has no relationship with the request"
// @Failure     404  {object}  handlers.ErrorResponse "Request not found"
// @Failure     422  {object}  handlers.ErrorResponse "No negotiating counterpart yet"
// @Router      /requests/{id}/chat [post]
func (h *Handlers) OpenChat(c *gin.Context) {
	requestID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}
	chat, err := h.chatSvc.FindOrCreate(c.Request.Context(), userID(c), requestID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, chat)
}

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns a page of the caller's chats with last-message previews
// @Description and unread counts. Supports weak ETag via If-None-Match and may
// @Description return 304.
// @Tags        Chats
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChatsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.chatSvc.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"chats:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.chatSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{
		Chats:      items,
		Pagination: paginate(page, pageSize, total),
	})
}

// ChatHistory godoc
// @ID          chatHistory
// @Summary     Read a chat's message history (paginated)
// @Description Returns messages in send order. Only chat members may read.
// @Tags        Chats
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ChatHistoryResponse
// @Failure     403  {object}  handlers.ErrorResponse "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	chatID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a positive integer")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.chatSvc.History(c.Request.Context(), userID(c), chatID, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ChatHistoryResponse{
		Messages:   items,
		Pagination: paginate(page, pageSize, total),
	})
}

// DeleteChat godoc
// @ID          deleteChat
// @Summary     Delete a chat and all of its messages
// @Description Either member may delete. The other member is notified on
// @Description their personal deletion channel.
// @Tags        Chats
// @Produce     json
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id} [delete]
func (h *Handlers) DeleteChat(c *gin.Context) {
	chatID, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a positive integer")
		return
	}
	if err := h.chatSvc.Delete(c.Request.Context(), userID(c), chatID); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
