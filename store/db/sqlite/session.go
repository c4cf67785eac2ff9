package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/store"
)

type sqliteSessionStore struct {
	db *sql.DB
}

func (s *sqliteSessionStore) Append(ctx context.Context, msg *store.SessionMessage) error {
	query := `
		INSERT INTO session (key, channel_id, user_id, role, content, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.Key,
		msg.ChannelID,
		msg.UserID,
		msg.Role,
		msg.Content,
		msg.CreatedTs,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to append session message %s", msg.Key)
	}
	return nil
}

// ListByConversation returns turns oldest-first. A limit of 0 means no limit.
func (s *sqliteSessionStore) ListByConversation(ctx context.Context, channelID, userID string, limit int) ([]*store.SessionMessage, error) {
	query := `
		SELECT key, channel_id, user_id, role, content, created_ts
		FROM session WHERE channel_id = ? AND user_id = ?
		ORDER BY created_ts, key
	`
	args := []any{channelID, userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session messages")
	}
	defer rows.Close()

	var messages []*store.SessionMessage
	for rows.Next() {
		msg := store.SessionMessage{}
		if err := rows.Scan(&msg.Key, &msg.ChannelID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan session message")
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rows")
	}
	return messages, nil
}

func (s *sqliteSessionStore) DeleteByChannel(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE channel_id = ?`, channelID); err != nil {
		return errors.Wrapf(err, "failed to delete session messages for channel %s", channelID)
	}
	return nil
}

var _ store.SessionStore = (*sqliteSessionStore)(nil)
