package chat

import (
	"strings"
	"time"
)

// ---------------------------------------------
// 🆔 Identities & Addressing
// ---------------------------------------------

type UserID string

type GroupID string

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// ConversationRef addresses either a two-party conversation (unordered pair)
// or a group conversation. Only the fields of its Kind are meaningful.
type ConversationRef struct {
	Kind    ConversationKind `json:"kind"`
	UserA   UserID           `json:"userA,omitempty"`
	UserB   UserID           `json:"userB,omitempty"`
	GroupID GroupID          `json:"groupId,omitempty"`
}

func Direct(a, b UserID) ConversationRef {
	return ConversationRef{Kind: KindDirect, UserA: a, UserB: b}
}

func Group(id GroupID) ConversationRef {
	return ConversationRef{Kind: KindGroup, GroupID: id}
}

func (c ConversationRef) IsGroup() bool { return c.Kind == KindGroup }

// Key is the canonical storage key. Direct pairs are sorted so that
// Direct(a, b) and Direct(b, a) share one history.
func (c ConversationRef) Key() string {
	if c.IsGroup() {
		return "g:" + string(c.GroupID)
	}
	a, b := c.UserA, c.UserB
	if b < a {
		a, b = b, a
	}
	return "d:" + string(a) + ":" + string(b)
}

// Participants returns the direct pair. It is empty for groups, whose
// membership lives outside the conversation.
func (c ConversationRef) Participants() []UserID {
	if c.IsGroup() {
		return nil
	}
	return []UserID{c.UserA, c.UserB}
}

// ---------------------------------------------
// ✉️ Content
// ---------------------------------------------

type Image struct {
	URL       string `json:"url" validate:"required,url"`
	ContentID string `json:"contentId,omitempty"`
}

// Content holds exactly one of Text or Image once validated.
type Content struct {
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

func TextContent(body string) Content { return Content{Text: body} }

func ImageContent(url, contentID string) Content {
	return Content{Image: &Image{URL: url, ContentID: contentID}}
}

func (c Content) hasText() bool  { return strings.TrimSpace(c.Text) != "" }
func (c Content) hasImage() bool { return c.Image != nil }

// ---------------------------------------------
// 🗄️ Records & Events
// ---------------------------------------------

type MessageRecord struct {
	ID           string          `json:"id"`
	Sender       UserID          `json:"sender"`
	Conversation ConversationRef `json:"conversation"`
	Content      Content         `json:"content"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Profile is the sender block attached to live deliveries.
type Profile struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	AvatarRef string `json:"avatarRef"`
}

// DeliveryEvent is built per recipient handle at fan-out time and never stored.
type DeliveryEvent struct {
	MessageID    string
	Content      Content
	Sender       Profile
	Conversation ConversationRef
	Recipient    UserID
	FromSelf     bool
	Timestamp    time.Time
}
