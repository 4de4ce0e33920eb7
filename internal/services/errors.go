// Package services defines the business logic for negotiations, chats, and
// messages. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages, HTTP status codes, or channel error frames should
// be performed at the handler layer.
//
// The errors fall into a small taxonomy mirrored by the transport layers:
//   - not found:     the entity id does not resolve
//   - access denied: authenticated but not entitled (not a member, not the
//     sender, not the owner, not the bidder)
//   - already exists: duplicate non-terminal offer
//   - conflict:      optimistic-concurrency mismatch or action on an
//     already-terminal offer / already-removed message
//   - validation:    oversized or empty input
package services

import "errors"

// Not-found errors.
var (
	// ErrRequestNotFound indicates that the referenced work request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrOfferNotFound indicates that the referenced offer does not exist.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrChatNotFound indicates that the referenced chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound indicates that the referenced message does not exist
	// in the referenced chat.
	ErrMessageNotFound = errors.New("message not found")
)

// Access-denied errors.
var (
	// ErrNotMember is returned when the caller is not one of a chat's two members.
	ErrNotMember = errors.New("not a chat member")

	// ErrNotSender is returned when a caller tries to edit or delete a
	// message they did not author.
	ErrNotSender = errors.New("not the message sender")

	// ErrNotOwner is returned when a request-owner-only operation is invoked
	// by another identity.
	ErrNotOwner = errors.New("not the request owner")

	// ErrNotBidder is returned when an offer-bidder-only operation is invoked
	// by another identity.
	ErrNotBidder = errors.New("not the offer bidder")
)

// Already-exists errors.
var (
	// ErrDuplicateOffer is returned when a bidder already holds a pending or
	// accepted offer on the same request.
	ErrDuplicateOffer = errors.New("active offer already exists for this request")
)

// Conflict / stale-state errors.
var (
	// ErrStaleOffer is returned when the observed creation time presented on
	// accept does not match the stored value: the offer was mutated since the
	// caller last read it.
	ErrStaleOffer = errors.New("offer changed since last read")

	// ErrOfferState is returned when an offer is not in a status that permits
	// the requested transition.
	ErrOfferState = errors.New("offer status does not allow this operation")

	// ErrRequestState is returned when a request is not in a status that
	// permits the requested transition.
	ErrRequestState = errors.New("request status does not allow this operation")

	// ErrMessageRemoved is returned when an edit or delete targets a message
	// that has already been deleted; removal is terminal.
	ErrMessageRemoved = errors.New("message already deleted")
)

// Validation errors.
var (
	// ErrEmptyBody is returned when a text message carries no body.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrBodyTooLong is returned when a message body exceeds the configured
	// maximum rune count.
	ErrBodyTooLong = errors.New("message body too long")

	// ErrMediaRefTooLong is returned when a media reference exceeds the
	// configured maximum length.
	ErrMediaRefTooLong = errors.New("media reference too long")

	// ErrInvalidKind is returned when a message kind is not "text" or "media".
	ErrInvalidKind = errors.New("invalid message kind")

	// ErrInvalidPrice is returned when an offer price is not positive.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrNoCandidate is returned when the request owner opens a chat before
	// any bidder has placed an offer, so there is no counterpart to bind.
	ErrNoCandidate = errors.New("no candidate bidder for this request")
)
