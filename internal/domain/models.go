// Package domain defines the persistence models for work requests, offers,
// chats, and messages. These types are mapped with GORM and form the core
// data layer of the marketplace backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Request lifecycle statuses. A request moves strictly forward:
// open → accepted → complete → archived. Archiving directly from open is
// allowed only while no offers exist.
const (
	RequestOpen     = "open"
	RequestAccepted = "accepted"
	RequestComplete = "complete"
	RequestArchived = "archived"
)

// Offer lifecycle statuses. Pending offers may be accepted, rejected, or
// withdrawn; an accepted offer completes together with its request; rejected,
// withdrawn, and complete offers can be archived (soft hide).
const (
	OfferPending   = "pending"
	OfferAccepted  = "accepted"
	OfferRejected  = "rejected"
	OfferWithdrawn = "withdrawn"
	OfferComplete  = "complete"
	OfferArchived  = "archived"
)

// Message kinds.
const (
	MessageText  = "text"
	MessageMedia = "media"
)

// Request represents a unit of paid work posted by an owner and open for
// bidding. At most one of its offers can ever be accepted, and its status is
// "accepted" exactly when such an offer exists.
//
// Fields:
//   - ID: auto-increment primary key.
//   - OwnerID: identity of the requester; indexed for listing.
//   - Title / Description: what the work is.
//   - Status: one of the Request* constants (enforced by DB constraint).
//   - Deadline: when the work is due.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Request struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	OwnerID     string    `json:"owner_id"    gorm:"type:varchar(64);not null;index:idx_owner_requests"`
	Title       string    `json:"title"       gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Status      string    `json:"status"      gorm:"type:varchar(16);not null;default:'open';check:status IN ('open','accepted','complete','archived')"`
	Deadline    time.Time `json:"deadline"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Request.
func (Request) TableName() string { return "requests" }

// Offer is a bidder's proposal against a request, carrying a price and a
// free-text note. A bidder holds at most one non-terminal (pending/accepted)
// offer per request.
//
// CreatedAt doubles as the optimistic-concurrency token for acceptance: the
// caller must present the creation time they last observed, and a mismatch
// refuses the accept.
type Offer struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	RequestID int64     `json:"request_id" gorm:"not null;index:idx_request_offers"`
	BidderID  string    `json:"bidder_id"  gorm:"type:varchar(64);not null;index"`
	Price     int64     `json:"price"      gorm:"not null"` // minor currency units
	Note      string    `json:"note"       gorm:"type:text"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted','rejected','withdrawn','complete','archived')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Request is the parent work request.
	Request Request `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string { return "offers" }

// Terminal reports whether the offer can no longer move back into play.
// Accepted is not terminal: it still advances to complete.
func (o Offer) Terminal() bool {
	switch o.Status {
	case OfferRejected, OfferWithdrawn, OfferComplete, OfferArchived:
		return true
	}
	return false
}

// Chat is the real-time channel between a request's owner and one bidder.
// It is keyed 1:1 to a request: a request has at most one chat for its whole
// lifetime, and either member may open it once a candidate relationship
// exists (acceptance is not required).
type Chat struct {
	ID         int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	RequestID  int64     `json:"request_id"  gorm:"not null;uniqueIndex:ux_chat_request"`
	CustomerID string    `json:"customer_id" gorm:"type:varchar(64);not null;index"`
	BidderID   string    `json:"bidder_id"   gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// HasMember reports whether identity is one of the chat's two members.
func (c Chat) HasMember(identity string) bool {
	return identity != "" && (identity == c.CustomerID || identity == c.BidderID)
}

// OtherMember returns the counterpart of identity in the chat, or "" when
// identity is not a member.
func (c Chat) OtherMember(identity string) string {
	switch identity {
	case c.CustomerID:
		return c.BidderID
	case c.BidderID:
		return c.CustomerID
	}
	return ""
}

// Message is a single utterance within a chat, authored by one of its
// members. Messages carry text and/or a media reference, a per-message read
// flag set when the counterpart has observed it, and an edited flag set by a
// later edit action. Deleting a message blanks its content and is terminal.
//
// Messages have no independent existence: they are destroyed only as a side
// effect of chat deletion.
type Message struct {
	ID        int64          `json:"id"        gorm:"primaryKey;autoIncrement"`
	ChatID    int64          `json:"chat_id"   gorm:"not null;index:idx_chat_msgs,priority:1"`
	SenderID  string         `json:"sender_id" gorm:"type:varchar(64);not null"`
	Kind      string         `json:"kind"      gorm:"type:varchar(16);not null;default:'text';check:kind IN ('text','media')"`
	Body      string         `json:"body"      gorm:"type:text"`
	MediaRef  string         `json:"media_ref,omitempty" gorm:"type:varchar(512)"`
	Read      bool           `json:"read"      gorm:"not null;default:false"`
	Edited    bool           `json:"edited"    gorm:"not null;default:false"`
	Removed   bool           `json:"removed"   gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`

	// Chat is the parent channel. Chat deletion removes its messages
	// explicitly inside the same transaction rather than leaning on the
	// FK constraint alone.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
