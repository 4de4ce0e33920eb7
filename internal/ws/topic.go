// Topic grammar and subscribe authorization.
//
// The channel recognizes an explicit, enumerated set of topic shapes, each
// mapped to a policy tag. There is no ad hoc pattern matching scattered
// across handlers: every subscribe request funnels through ParseTopic and
// Authorizer.Authorize.
//
//	shape                      policy
//	-----                      ------
//	inbox                      personal (any authenticated identity, own inbox)
//	chatDeleted                personal (any authenticated identity, own inbox)
//	chat/{id}                  membership-checked
//	chat/{id}/read             membership-checked
//	chat/{id}/messageAction    membership-checked
//	anything else              deny
//
// Personal topics carry no identifier on the wire; the authorizer resolves
// them to the canonical per-identity name so a session can only ever receive
// its own inbox traffic. Unparseable or negative chat ids are treated as
// non-existent chats and denied.
package ws

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrTopicDenied is returned when a subscribe request names an unknown topic
// shape or the bound identity fails the topic's policy. A denial rejects only
// that subscribe attempt; it never grants a broader topic and never tears
// down the session's other subscriptions.
var ErrTopicDenied = errors.New("subscription denied")

// TopicKind enumerates the recognized topic shapes.
type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicInbox
	TopicChatDeleted
	TopicChatStream
	TopicChatRead
	TopicChatAction
)

// Policy tags attached to topic kinds.
type Policy int

const (
	// PolicyDeny rejects the subscribe outright.
	PolicyDeny Policy = iota
	// PolicyPersonal allows any authenticated identity; the subscription is
	// bound to the identity's own canonical topic.
	PolicyPersonal
	// PolicyMembership allows only members of the referenced chat.
	PolicyMembership
)

// Policy returns the authorization policy for a topic kind.
func (k TopicKind) Policy() Policy {
	switch k {
	case TopicInbox, TopicChatDeleted:
		return PolicyPersonal
	case TopicChatStream, TopicChatRead, TopicChatAction:
		return PolicyMembership
	}
	return PolicyDeny
}

// Topic is a parsed subscribe target.
type Topic struct {
	Kind   TopicKind
	ChatID int64 // set for membership-checked kinds
}

// ParseTopic parses the client-facing topic grammar. It returns ok=false for
// anything outside the enumerated set, including malformed or negative chat
// ids.
func ParseTopic(raw string) (Topic, bool) {
	switch raw {
	case "inbox":
		return Topic{Kind: TopicInbox}, true
	case "chatDeleted":
		return Topic{Kind: TopicChatDeleted}, true
	}

	parts := strings.Split(raw, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "chat" {
		return Topic{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id < 0 {
		return Topic{}, false
	}
	if len(parts) == 2 {
		return Topic{Kind: TopicChatStream, ChatID: id}, true
	}
	switch parts[2] {
	case "read":
		return Topic{Kind: TopicChatRead, ChatID: id}, true
	case "messageAction":
		return Topic{Kind: TopicChatAction, ChatID: id}, true
	}
	return Topic{}, false
}

// MembershipChecker answers the pure membership predicate used by the
// membership-checked topic policies. Implementations never error; unknown
// chats are simply non-members.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID int64, identity string) bool
}

// Authorizer gates subscribe requests on an authenticated session.
type Authorizer struct {
	Members MembershipChecker
}

// Authorize validates raw against the topic grammar and its policy for the
// bound identity. On success it returns the canonical topic name the hub
// publishes on; on failure it returns ErrTopicDenied.
func (a Authorizer) Authorize(ctx context.Context, identity, raw string) (string, error) {
	t, ok := ParseTopic(raw)
	if !ok {
		return "", ErrTopicDenied
	}
	switch t.Kind.Policy() {
	case PolicyPersonal:
		if t.Kind == TopicInbox {
			return InboxTopic(identity), nil
		}
		return ChatDeletedTopic(identity), nil
	case PolicyMembership:
		if a.Members != nil && a.Members.IsMember(ctx, t.ChatID, identity) {
			switch t.Kind {
			case TopicChatStream:
				return ChatTopic(t.ChatID), nil
			case TopicChatRead:
				return ChatReadTopic(t.ChatID), nil
			case TopicChatAction:
				return ChatActionTopic(t.ChatID), nil
			}
		}
	}
	return "", ErrTopicDenied
}
