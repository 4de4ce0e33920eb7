package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// ---------- test helpers ----------

func newChatDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chatsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Request{}, &domain.Offer{}, &domain.Chat{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// recPub records published events in order. Shared by the chat and message
// service tests.
type recPub struct {
	mu     sync.Mutex
	topics []string
	events []ws.Event
}

func (p *recPub) Publish(topic string, ev ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
}

func (p *recPub) last() (string, ws.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return "", ws.Event{}, false
	}
	return p.topics[len(p.topics)-1], p.events[len(p.events)-1], true
}

func (p *recPub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func seedChatRequest(t *testing.T, db *gorm.DB, owner string) *domain.Request {
	t.Helper()
	r := &domain.Request{
		OwnerID:  owner,
		Title:    "Paint the fence",
		Status:   domain.RequestOpen,
		Deadline: time.Now().UTC().Add(48 * time.Hour),
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return r
}

func seedChatOffer(t *testing.T, db *gorm.DB, requestID int64, bidder, status string) *domain.Offer {
	t.Helper()
	o := &domain.Offer{RequestID: requestID, BidderID: bidder, Price: 5000, Status: status}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return o
}

// ---------- FindOrCreate ----------

func TestChatService_FindOrCreate_BidderFirstContact(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)

	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if chat.CustomerID != "owner" || chat.BidderID != "bidder" || chat.RequestID != req.ID {
		t.Fatalf("unexpected chat: %+v", chat)
	}

	// Idempotent: a second call from either member returns the same chat.
	again, err := s.FindOrCreate(ctx, "owner", req.ID)
	if err != nil || again.ID != chat.ID {
		t.Fatalf("second call: chat=%+v err=%v", again, err)
	}
	var n int64
	db.Model(&domain.Chat{}).Where("request_id = ?", req.ID).Count(&n)
	if n != 1 {
		t.Fatalf("chat rows = %d; want 1", n)
	}
}

func TestChatService_FindOrCreate_OwnerBindsEarliestActiveBidder(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "first", domain.OfferWithdrawn) // not a candidate
	seedChatOffer(t, db, req.ID, "second", domain.OfferPending)
	seedChatOffer(t, db, req.ID, "third", domain.OfferPending)

	chat, err := s.FindOrCreate(ctx, "owner", req.ID)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if chat.BidderID != "second" {
		t.Fatalf("bound bidder = %q; want earliest active %q", chat.BidderID, "second")
	}
}

func TestChatService_FindOrCreate_Refusals(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	ctx := context.Background()

	if _, err := s.FindOrCreate(ctx, "anyone", 999); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	// Owner with no bidders has no candidate relationship.
	bare := seedChatRequest(t, db, "owner")
	if _, err := s.FindOrCreate(ctx, "owner", bare.ID); !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}

	// A bidder without an active offer has no standing.
	if _, err := s.FindOrCreate(ctx, "drive-by", bare.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	// An existing chat stays closed to third parties.
	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	if _, err := s.FindOrCreate(ctx, "bidder", req.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.FindOrCreate(ctx, "third-party", req.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for third party, got %v", err)
	}
}

// ---------- Delete ----------

func TestChatService_Delete_CascadesAndNotifiesOtherMember(t *testing.T) {
	db := newChatDB(t)
	pub := &recPub{}
	s := NewChatService(db, pub)
	msgs := NewMessageService(db, nil)
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := msgs.Send(ctx, "bidder", chat.ID, domain.MessageText, "hi", ""); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if err := s.Delete(ctx, "stranger", chat.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := s.Delete(ctx, "owner", chat.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var chats, messages int64
	db.Model(&domain.Chat{}).Where("id = ?", chat.ID).Count(&chats)
	db.Unscoped().Model(&domain.Message{}).Where("chat_id = ?", chat.ID).Count(&messages)
	if chats != 0 || messages != 0 {
		t.Fatalf("rows after delete: chats=%d messages=%d", chats, messages)
	}

	// The deleting member gets no notice; the counterpart does.
	topic, ev, okEv := pub.last()
	if !okEv || topic != ws.ChatDeletedTopic("bidder") || ev.Type != ws.EventChatDeleted {
		t.Fatalf("deletion notice unexpected: topic=%q ev=%+v", topic, ev)
	}
	data, okData := ev.Data.(ws.ChatDeletedData)
	if !okData || data.ChatID != chat.ID || data.RequestID != req.ID {
		t.Fatalf("deletion payload unexpected: %+v", ev.Data)
	}

	if err := s.Delete(ctx, "owner", chat.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound on re-delete, got %v", err)
	}
}

// ---------- IsMember ----------

func TestChatService_IsMember(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if !s.IsMember(ctx, chat.ID, "owner") || !s.IsMember(ctx, chat.ID, "bidder") {
		t.Fatalf("members not recognized")
	}
	if s.IsMember(ctx, chat.ID, "stranger") {
		t.Fatalf("stranger recognized as member")
	}
	// Unknown chats are non-members, never errors.
	if s.IsMember(ctx, 999, "owner") {
		t.Fatalf("unknown chat treated as membership")
	}
}

// ---------- ListPage / History / Stats ----------

func TestChatService_ListPage_PreviewsAndUnread(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	msgs := NewMessageService(db, nil)
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := msgs.Send(ctx, "bidder", chat.ID, domain.MessageText, "first", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := msgs.Send(ctx, "bidder", chat.ID, domain.MessageText, "latest", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	page, total, err := s.ListPage(ctx, "owner", 1, 10)
	if err != nil || total != 1 || len(page) != 1 {
		t.Fatalf("ListPage: page=%v total=%d err=%v", page, total, err)
	}
	sum := page[0]
	if sum.Chat.ID != chat.ID || sum.Unread != 2 {
		t.Fatalf("summary unexpected: %+v", sum)
	}
	if sum.LastMessage == nil || sum.LastMessage.Body != "latest" {
		t.Fatalf("preview unexpected: %+v", sum.LastMessage)
	}

	// The sender has nothing unread.
	page, _, err = s.ListPage(ctx, "bidder", 1, 10)
	if err != nil || len(page) != 1 || page[0].Unread != 0 {
		t.Fatalf("bidder summary unexpected: %+v err=%v", page, err)
	}

	// Out-of-range pages are empty, not errors.
	page, total, err = s.ListPage(ctx, "owner", 5, 10)
	if err != nil || total != 1 || len(page) != 0 {
		t.Fatalf("page overflow unexpected: page=%v total=%d err=%v", page, total, err)
	}
}

func TestChatService_History_MembershipAndOrder(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	msgs := NewMessageService(db, nil)
	ctx := context.Background()

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, body := range []string{"one", "two", "three"} {
		if _, err := msgs.Send(ctx, "bidder", chat.ID, domain.MessageText, body, ""); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	items, total, err := s.History(ctx, "owner", chat.ID, 1, 10)
	if err != nil || total != 3 || len(items) != 3 {
		t.Fatalf("History: len=%d total=%d err=%v", len(items), total, err)
	}
	if items[0].Body != "one" || items[2].Body != "three" {
		t.Fatalf("history out of send order: %+v", items)
	}

	if _, _, err := s.History(ctx, "stranger", chat.ID, 1, 10); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, _, err := s.History(ctx, "owner", 999, 1, 10); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestChatService_Stats_TracksCountAndLatestMessage(t *testing.T) {
	db := newChatDB(t)
	s := NewChatService(db, &recPub{})
	msgs := NewMessageService(db, nil)
	ctx := context.Background()

	count, maxTS, err := s.Stats(ctx, "owner")
	if err != nil || count != 0 || maxTS != nil {
		t.Fatalf("empty stats unexpected: count=%d ts=%v err=%v", count, maxTS, err)
	}

	req := seedChatRequest(t, db, "owner")
	seedChatOffer(t, db, req.ID, "bidder", domain.OfferPending)
	chat, err := s.FindOrCreate(ctx, "bidder", req.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := msgs.Send(ctx, "bidder", chat.ID, domain.MessageText, "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	count, maxTS, err = s.Stats(ctx, "owner")
	if err != nil || count != 1 || maxTS == nil {
		t.Fatalf("stats unexpected: count=%d ts=%v err=%v", count, maxTS, err)
	}
}
