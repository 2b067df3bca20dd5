package chat

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------
// ⚡ WebSocket Frames
// ---------------------------------------------

const (
	EventIdentify   = "identify"
	EventIdentified = "identified"
	EventSend       = "send"
	EventDeliver    = "deliver"
	EventError      = "error"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type IdentifyPayload struct {
	UserID UserID `json:"userId"`
}

type ImagePayload struct {
	URL       string `json:"url"`
	ContentID string `json:"contentId,omitempty"`
}

// SendPayload is what the client SENDS. To is a user id, or a group id when
// IsGroup is set.
type SendPayload struct {
	To      string        `json:"to"`
	From    UserID        `json:"from"`
	Text    string        `json:"text,omitempty"`
	Image   *ImagePayload `json:"image,omitempty"`
	IsGroup bool          `json:"isGroup"`
}

// Conversation maps the flat wire addressing onto a ConversationRef.
func (p SendPayload) Conversation(sender UserID) ConversationRef {
	if p.IsGroup {
		return Group(GroupID(p.To))
	}
	return Direct(sender, UserID(p.To))
}

func (p SendPayload) Content() Content {
	c := Content{Text: p.Text}
	if p.Image != nil {
		c.Image = &Image{URL: p.Image.URL, ContentID: p.Image.ContentID}
	}
	return c
}

type DeliverPayload struct {
	ID        string        `json:"id"`
	Text      string        `json:"text,omitempty"`
	Image     *ImagePayload `json:"image,omitempty"`
	From      UserID        `json:"from"`
	IsGroup   bool          `json:"isGroup"`
	GroupID   GroupID       `json:"groupId,omitempty"`
	Sender    Profile       `json:"sender"`
	FromSelf  bool          `json:"fromSelf"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewDeliverPayload(evt DeliveryEvent) DeliverPayload {
	p := DeliverPayload{
		ID:        evt.MessageID,
		Text:      evt.Content.Text,
		From:      evt.Sender.ID,
		IsGroup:   evt.Conversation.IsGroup(),
		GroupID:   evt.Conversation.GroupID,
		Sender:    evt.Sender,
		FromSelf:  evt.FromSelf,
		Timestamp: evt.Timestamp,
	}
	if img := evt.Content.Image; img != nil {
		p.Image = &ImagePayload{URL: img.URL, ContentID: img.ContentID}
	}
	return p
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func encodeFrame(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
