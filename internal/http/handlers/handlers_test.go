package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/services"
)

// ---------- fakes ----------

// fakeNegSvc is a scriptable NegotiationService: each field, when set,
// overrides the default "happy path" behavior.
type fakeNegSvc struct {
	createRequestErr error
	searchErr        error
	mineErr          error
	listOffersErr    error
	createOfferErr   error
	acceptErr        error
	withdrawErr      error
	deleteOfferErr   error
	completeErr      error
	archiveErr       error

	lastObserved time.Time
	lastCaller   string
}

func (f *fakeNegSvc) CreateRequest(_ context.Context, ownerID, title, description string, deadline time.Time) (*domain.Request, error) {
	if f.createRequestErr != nil {
		return nil, f.createRequestErr
	}
	return &domain.Request{ID: 1, OwnerID: ownerID, Title: title, Description: description, Status: domain.RequestOpen, Deadline: deadline}, nil
}

func (f *fakeNegSvc) SearchRequests(_ context.Context, page, pageSize int) ([]domain.Request, int64, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return []domain.Request{{ID: 1, Status: domain.RequestOpen}}, 1, nil
}

func (f *fakeNegSvc) MyRequests(_ context.Context, ownerID string) ([]domain.Request, error) {
	if f.mineErr != nil {
		return nil, f.mineErr
	}
	return []domain.Request{
		{ID: 1, OwnerID: ownerID, Status: domain.RequestOpen},
		{ID: 2, OwnerID: ownerID, Status: domain.RequestArchived},
	}, nil
}

func (f *fakeNegSvc) ListOffers(_ context.Context, identity string, requestID int64) ([]domain.Offer, error) {
	if f.listOffersErr != nil {
		return nil, f.listOffersErr
	}
	return []domain.Offer{{ID: 5, RequestID: requestID, BidderID: identity}}, nil
}

func (f *fakeNegSvc) CreateOffer(_ context.Context, bidderID string, requestID, price int64, note string) (*domain.Offer, error) {
	if f.createOfferErr != nil {
		return nil, f.createOfferErr
	}
	return &domain.Offer{ID: 5, RequestID: requestID, BidderID: bidderID, Price: price, Note: note, Status: domain.OfferPending}, nil
}

func (f *fakeNegSvc) AcceptOffer(_ context.Context, callerID string, offerID int64, observed time.Time) (*domain.Offer, error) {
	f.lastCaller = callerID
	f.lastObserved = observed
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &domain.Offer{ID: offerID, Status: domain.OfferAccepted}, nil
}

func (f *fakeNegSvc) WithdrawOffer(_ context.Context, bidderID string, offerID int64) error {
	return f.withdrawErr
}

func (f *fakeNegSvc) DeleteOffer(_ context.Context, bidderID string, offerID int64) error {
	return f.deleteOfferErr
}

func (f *fakeNegSvc) MarkRequestComplete(_ context.Context, ownerID string, requestID int64) error {
	return f.completeErr
}

func (f *fakeNegSvc) ArchiveRequest(_ context.Context, ownerID string, requestID int64) error {
	return f.archiveErr
}

// fakeChatSvc is a scriptable ChatService.
type fakeChatSvc struct {
	findOrCreateErr error
	deleteErr       error
	listErr         error
	historyErr      error
	statsErr        error

	statsCount int64
	statsTS    *time.Time
}

func (f *fakeChatSvc) FindOrCreate(_ context.Context, identity string, requestID int64) (*domain.Chat, error) {
	if f.findOrCreateErr != nil {
		return nil, f.findOrCreateErr
	}
	return &domain.Chat{ID: 3, RequestID: requestID, CustomerID: "owner", BidderID: identity}, nil
}

func (f *fakeChatSvc) Delete(_ context.Context, identity string, chatID int64) error {
	return f.deleteErr
}

func (f *fakeChatSvc) ListPage(_ context.Context, identity string, page, pageSize int) ([]services.ChatSummary, int64, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return []services.ChatSummary{{Chat: domain.Chat{ID: 3}, Unread: 2}}, 1, nil
}

func (f *fakeChatSvc) History(_ context.Context, identity string, chatID int64, page, pageSize int) ([]domain.Message, int64, error) {
	if f.historyErr != nil {
		return nil, 0, f.historyErr
	}
	return []domain.Message{{ID: 9, ChatID: chatID, SenderID: "owner", Body: "hi"}}, 1, nil
}

func (f *fakeChatSvc) Stats(_ context.Context, identity string) (int64, *time.Time, error) {
	if f.statsErr != nil {
		return 0, nil, f.statsErr
	}
	return f.statsCount, f.statsTS, nil
}

// ---------- harness ----------

func newRouter(neg *fakeNegSvc, chat *fakeChatSvc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(neg, chat)

	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListRequests)
	r.POST("/requests/:id/complete", h.CompleteRequest)
	r.DELETE("/requests/:id", h.ArchiveRequest)
	r.POST("/requests/:id/offers", h.CreateOffer)
	r.GET("/requests/:id/offers", h.ListOffers)
	r.POST("/offers/:id/accept", h.AcceptOffer)
	r.POST("/offers/:id/withdraw", h.WithdrawOffer)
	r.DELETE("/offers/:id", h.DeleteOffer)
	r.POST("/requests/:id/chat", h.OpenChat)
	r.GET("/chats", h.ListChats)
	r.GET("/chats/:id/messages", h.ChatHistory)
	r.DELETE("/chats/:id", h.DeleteChat)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body.Code
}

// ---------- requests ----------

func TestCreateRequest_HappyAndBadInput(t *testing.T) {
	r := newRouter(&fakeNegSvc{}, &fakeChatSvc{})

	w := do(t, r, http.MethodPost, "/requests", gin.H{
		"title":    "Fix tap",
		"deadline": time.Now().Add(time.Hour).Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got domain.Request
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.OwnerID != "u1" {
		t.Fatalf("body unexpected: %s err=%v", w.Body.String(), err)
	}

	w = do(t, r, http.MethodPost, "/requests", gin.H{"title": "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title: status=%d", w.Code)
	}
}

func TestListRequests_PaginationEnvelope(t *testing.T) {
	r := newRouter(&fakeNegSvc{}, &fakeChatSvc{})

	w := do(t, r, http.MethodGet, "/requests?page=1&page_size=500", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListRequestsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// page_size clamped to the maximum
	if resp.Pagination.PageSize != 100 || resp.Pagination.Total != 1 {
		t.Fatalf("pagination unexpected: %+v", resp.Pagination)
	}
}

func TestListRequests_MineIncludesEveryStatus(t *testing.T) {
	r := newRouter(&fakeNegSvc{}, &fakeChatSvc{})

	w := do(t, r, http.MethodGet, "/requests?mine=true", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListRequestsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Requests) != 2 || resp.Requests[0].OwnerID != "u1" {
		t.Fatalf("requests unexpected: %+v", resp.Requests)
	}
	if resp.Requests[1].Status != domain.RequestArchived {
		t.Fatalf("archived request missing from own listing: %+v", resp.Requests)
	}
}

func TestCompleteAndArchiveRequest_ServiceErrorMapping(t *testing.T) {
	neg := &fakeNegSvc{completeErr: services.ErrNotOwner, archiveErr: services.ErrRequestState}
	r := newRouter(neg, &fakeChatSvc{})

	w := do(t, r, http.MethodPost, "/requests/1/complete", nil, nil)
	if w.Code != http.StatusForbidden || errCode(t, w) != ErrCodeForbidden {
		t.Fatalf("complete: status=%d code=%s", w.Code, errCode(t, w))
	}
	w = do(t, r, http.MethodDelete, "/requests/1", nil, nil)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeConflict {
		t.Fatalf("archive: status=%d", w.Code)
	}
	// Non-numeric and negative ids are rejected before the service runs.
	w = do(t, r, http.MethodDelete, "/requests/abc", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status=%d", w.Code)
	}
	w = do(t, r, http.MethodDelete, "/requests/-4", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative id: status=%d", w.Code)
	}
}

// ---------- offers ----------

func TestCreateOffer_HappyAndConflict(t *testing.T) {
	neg := &fakeNegSvc{}
	r := newRouter(neg, &fakeChatSvc{})

	w := do(t, r, http.MethodPost, "/requests/1/offers", gin.H{"price": 12500, "note": "terms"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/requests/1/offers", gin.H{"price": 0}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero price: status=%d", w.Code)
	}

	neg.createOfferErr = services.ErrDuplicateOffer
	w = do(t, r, http.MethodPost, "/requests/1/offers", gin.H{"price": 100}, nil)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeAlreadyExists {
		t.Fatalf("duplicate: status=%d code=%s", w.Code, errCode(t, w))
	}
}

func TestAcceptOffer_CarriesObservedToken(t *testing.T) {
	neg := &fakeNegSvc{}
	r := newRouter(neg, &fakeChatSvc{})

	observed := time.Date(2025, 9, 14, 8, 30, 0, 0, time.UTC)
	w := do(t, r, http.MethodPost, "/offers/5/accept", gin.H{
		"observed_created_at": observed.Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !neg.lastObserved.Equal(observed) || neg.lastCaller != "u1" {
		t.Fatalf("service saw observed=%v caller=%q", neg.lastObserved, neg.lastCaller)
	}

	// Missing token is a bad request, not a service call.
	w = do(t, r, http.MethodPost, "/offers/5/accept", gin.H{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing token: status=%d", w.Code)
	}

	neg.acceptErr = services.ErrStaleOffer
	w = do(t, r, http.MethodPost, "/offers/5/accept", gin.H{
		"observed_created_at": observed.Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale: status=%d", w.Code)
	}
}

func TestWithdrawAndDeleteOffer_StatusMapping(t *testing.T) {
	neg := &fakeNegSvc{}
	r := newRouter(neg, &fakeChatSvc{})

	if w := do(t, r, http.MethodPost, "/offers/5/withdraw", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("withdraw: status=%d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/offers/5", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", w.Code)
	}

	neg.withdrawErr = services.ErrOfferNotFound
	if w := do(t, r, http.MethodPost, "/offers/5/withdraw", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("withdraw missing: status=%d", w.Code)
	}
	neg.deleteOfferErr = services.ErrNotBidder
	if w := do(t, r, http.MethodDelete, "/offers/5", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("delete foreign: status=%d", w.Code)
	}
}

// ---------- chats ----------

func TestOpenChat_StatusMapping(t *testing.T) {
	chat := &fakeChatSvc{}
	r := newRouter(&fakeNegSvc{}, chat)

	w := do(t, r, http.MethodPost, "/requests/1/chat", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got domain.Chat
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.BidderID != "u1" {
		t.Fatalf("chat body unexpected: %s", w.Body.String())
	}

	chat.findOrCreateErr = services.ErrNoCandidate
	if w := do(t, r, http.MethodPost, "/requests/1/chat", nil, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("no candidate: status=%d", w.Code)
	}
	chat.findOrCreateErr = services.ErrNotMember
	if w := do(t, r, http.MethodPost, "/requests/1/chat", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("not member: status=%d", w.Code)
	}
}

func TestListChats_ETagConditionalFlow(t *testing.T) {
	ts := time.Date(2025, 9, 14, 8, 0, 0, 0, time.UTC)
	chat := &fakeChatSvc{statsCount: 1, statsTS: &ts}
	r := newRouter(&fakeNegSvc{}, chat)

	w := do(t, r, http.MethodGet, "/chats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag header")
	}

	// Replaying with the tag short-circuits to 304.
	w = do(t, r, http.MethodGet, "/chats", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional: status=%d", w.Code)
	}

	// New traffic changes the tag and revalidation misses.
	later := ts.Add(time.Minute)
	chat.statsTS = &later
	w = do(t, r, http.MethodGet, "/chats", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stale tag: status=%d", w.Code)
	}
	if w.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change with new traffic")
	}

	// Stats failure degrades to an unconditional 200.
	chat.statsErr = context.DeadlineExceeded
	w = do(t, r, http.MethodGet, "/chats", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stats failure: status=%d", w.Code)
	}
}

func TestChatHistoryAndDelete_StatusMapping(t *testing.T) {
	chat := &fakeChatSvc{}
	r := newRouter(&fakeNegSvc{}, chat)

	w := do(t, r, http.MethodGet, "/chats/3/messages", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status=%d", w.Code)
	}
	var resp ChatHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Messages) != 1 {
		t.Fatalf("history body unexpected: %s", w.Body.String())
	}

	chat.historyErr = services.ErrChatNotFound
	if w := do(t, r, http.MethodGet, "/chats/3/messages", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("history missing: status=%d", w.Code)
	}

	if w := do(t, r, http.MethodDelete, "/chats/3", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", w.Code)
	}
	chat.deleteErr = services.ErrNotMember
	if w := do(t, r, http.MethodDelete, "/chats/3", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("delete foreign: status=%d", w.Code)
	}
}
