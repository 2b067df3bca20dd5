package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"talkative/internal/chat"
)

type onlineSet map[chat.UserID]bool

func (s onlineSet) Online(u chat.UserID) bool { return s[u] }

func TestSearchUsers_Flags_Online_Users(t *testing.T) {
	req := require.New(t)
	dir := NewMemoryDirectory()
	dir.Put(User{ID: "1", Username: "alice"})
	dir.Put(User{ID: "2", Username: "alicia"})
	dir.Put(User{ID: "3", Username: "bob"})
	h := NewHandler(dir, onlineSet{"2": true})

	rec := httptest.NewRecorder()
	h.SearchUsers(rec, httptest.NewRequest(http.MethodGet, "/api/users/search?q=ALI", nil))

	req.Equal(http.StatusOK, rec.Code)
	var results []SearchResult
	req.NoError(json.NewDecoder(rec.Body).Decode(&results))
	req.Len(results, 2)
	req.Equal("alice", results[0].Username)
	req.False(results[0].Online)
	req.Equal("alicia", results[1].Username)
	req.True(results[1].Online)
}

func TestMemoryDirectory_Profile(t *testing.T) {
	req := require.New(t)
	dir := NewMemoryDirectory()
	dir.Put(User{ID: "1", Username: "alice", AvatarImage: "avatars/1.png"})

	p, err := dir.Profile(context.Background(), "1")
	req.NoError(err)
	req.Equal(chat.Profile{ID: "1", Username: "alice", AvatarRef: "avatars/1.png"}, p)

	_, err = dir.Profile(context.Background(), "2")
	req.ErrorIs(err, chat.ErrNotFound)
}
