package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"talkative/internal/chat"
)

// Repository reads user profiles from Postgres. Accounts are created by the
// auth service; this service only reads them.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Profile implements chat.ProfileResolver.
func (r *Repository) Profile(ctx context.Context, id chat.UserID) (chat.Profile, error) {
	u := User{}
	query := "SELECT id, username, avatar_image FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.AvatarImage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Profile{}, fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
		}
		return chat.Profile{}, err
	}
	return u.Profile(), nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, avatar_image FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarImage); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
