package user

import (
	"context"
	"encoding/json"
	"net/http"

	"talkative/internal/chat"
)

type Directory interface {
	SearchUsers(ctx context.Context, query string) ([]User, error)
}

type OnlineChecker interface {
	Online(user chat.UserID) bool
}

type Handler struct {
	directory Directory
	presence  OnlineChecker
}

func NewHandler(d Directory, presence OnlineChecker) *Handler {
	return &Handler{directory: d, presence: presence}
}

// SearchUsers serves GET /api/users/search?q=..., flagging who is online.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results := make([]SearchResult, 0, len(users))
	for _, u := range users {
		results = append(results, SearchResult{User: u, Online: h.presence.Online(u.ID)})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
