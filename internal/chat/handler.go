package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy belongs to the fronting proxy
	},
}

// OnlineCounter reports how many users are online.
type OnlineCounter interface {
	Len() int
}

type HandlerOptions struct {
	SendBufferSize int
	MaxMessageSize int64
	HistoryLimit   int
}

type Handler struct {
	presence   Presence
	online     OnlineCounter
	ingest     Ingester
	dispatcher Dispatcher
	store      Store
	opts       HandlerOptions
	log        *zap.Logger
}

// NewHandler wires the transport to the core. presence must also implement
// OnlineCounter for the health endpoint to report numbers.
func NewHandler(presence Presence, ingest Ingester, dispatcher Dispatcher, store Store, opts HandlerOptions, log *zap.Logger) *Handler {
	online, _ := presence.(OnlineCounter)
	return &Handler{
		presence:   presence,
		online:     online,
		ingest:     ingest,
		dispatcher: dispatcher,
		store:      store,
		opts:       opts,
		log:        log,
	}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.opts.SendBufferSize, h.opts.MaxMessageSize, h.log)
	client.session = NewSession(client, h.presence, h.ingest, h.dispatcher, h.log)

	// The request context ends with this handler; the connection outlives it
	ctx := context.WithoutCancel(r.Context())
	go client.WritePump()
	go client.ReadPump(ctx)
}

// HistoryItem is one message of GET /api/messages, projected for the caller.
type HistoryItem struct {
	ID        string        `json:"id"`
	From      UserID        `json:"from"`
	FromSelf  bool          `json:"fromSelf"`
	Text      string        `json:"text,omitempty"`
	Image     *ImagePayload `json:"image,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// GetChatHistory serves ?user=A&peer=B for direct chats or ?user=A&group=G.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := UserID(q.Get("user"))
	ref := Direct(user, UserID(q.Get("peer")))
	if g := q.Get("group"); g != "" {
		ref = Group(GroupID(g))
	}
	if err := ValidateRef(ref); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.store.History(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("history failed", zap.String("conversation", ref.Key()), zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if limit := h.opts.HistoryLimit; limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	items := make([]HistoryItem, 0, len(records))
	for _, rec := range records {
		item := HistoryItem{
			ID:        rec.ID,
			From:      rec.Sender,
			FromSelf:  rec.Sender == user,
			Text:      rec.Content.Text,
			Timestamp: rec.CreatedAt,
		}
		if img := rec.Content.Image; img != nil {
			item.Image = &ImagePayload{URL: img.URL, ContentID: img.ContentID}
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	online := 0
	if h.online != nil {
		online = h.online.Len()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "online": online})
}
