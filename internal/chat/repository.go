package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts the message; created_at is assigned by the database so that
// every instance shares one clock.
func (r *Repository) Append(ctx context.Context, ref ConversationRef, sender UserID, content Content) (MessageRecord, error) {
	rec := MessageRecord{
		ID:           uuid.NewString(),
		Sender:       sender,
		Conversation: ref,
		Content:      content,
	}

	var imageURL, imageContentID sql.NullString
	if content.Image != nil {
		imageURL = sql.NullString{String: content.Image.URL, Valid: true}
		imageContentID = nullString(content.Image.ContentID)
	}

	query := `
		INSERT INTO messages
			(id, conversation_key, is_group, user_a, user_b, group_id, sender_id, body, image_url, image_content_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, ref.Key(), ref.IsGroup(),
		nullString(string(ref.UserA)), nullString(string(ref.UserB)), nullString(string(ref.GroupID)),
		sender, nullString(content.Text), imageURL, imageContentID,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("%w: insert message: %w", ErrStorage, err)
	}
	return rec, nil
}

// History returns every message of the conversation, oldest first.
func (r *Repository) History(ctx context.Context, ref ConversationRef) ([]MessageRecord, error) {
	query := `
		SELECT id, sender_id, user_a, user_b, group_id, body, image_url, image_content_id, created_at
		FROM messages
		WHERE conversation_key = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ref.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %w", ErrStorage, err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var (
			rec                          MessageRecord
			userA, userB, groupID        sql.NullString
			body, imageURL, imageContent sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Sender, &userA, &userB, &groupID, &body, &imageURL, &imageContent, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", ErrStorage, err)
		}
		rec.Conversation = ref
		if !ref.IsGroup() {
			rec.Conversation = Direct(UserID(userA.String), UserID(userB.String))
		}
		if imageURL.Valid {
			rec.Content = ImageContent(imageURL.String, imageContent.String)
		} else {
			rec.Content = TextContent(body.String)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read history: %w", ErrStorage, err)
	}
	return records, nil
}

// GroupRepository is the Postgres MembershipResolver.
type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) ParticipantsOf(ctx context.Context, id GroupID) ([]UserID, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT true FROM groups WHERE id = $1", id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM group_participants WHERE group_id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []UserID
	for rows.Next() {
		var u UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
