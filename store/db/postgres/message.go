package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hrygo/mynah/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) error {
	query := `
		INSERT INTO messages (
			chat_id, message_id, timestamp, sender_id, sender_username,
			sender_name, text, reply_to_message_id, reply_to_message_trimmed_text,
			media_file_id, media_type, deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chat_id, message_id) DO NOTHING
	`

	_, err := d.db.ExecContext(ctx, query,
		create.ChatID,
		create.MessageID,
		create.Timestamp,
		create.SenderID,
		nullString(create.SenderUsername),
		nullString(create.SenderName),
		create.Text,
		nullInt64(create.ReplyToMessageID),
		nullString(create.ReplyToTrimmed),
		nullString(create.MediaFileID),
		nullString(string(create.MediaType)),
		create.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

const messageFields = `
	umid, chat_id, message_id, timestamp, sender_id,
	COALESCE(sender_username, ''), COALESCE(sender_name, ''), COALESCE(text, ''),
	COALESCE(reply_to_message_id, 0), COALESCE(reply_to_message_trimmed_text, ''),
	COALESCE(media_file_id, ''), COALESCE(media_type, ''), deleted
`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var msg store.Message
	var mediaType string
	err := row.Scan(
		&msg.UMID,
		&msg.ChatID,
		&msg.MessageID,
		&msg.Timestamp,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.SenderName,
		&msg.Text,
		&msg.ReplyToMessageID,
		&msg.ReplyToTrimmed,
		&msg.MediaFileID,
		&mediaType,
		&msg.Deleted,
	)
	if err != nil {
		return nil, err
	}
	msg.MediaType = store.MediaType(mediaType)
	return &msg, nil
}

func (d *DB) GetMessage(ctx context.Context, chatID, messageID int64) (*store.Message, error) {
	query := `SELECT ` + messageFields + ` FROM messages WHERE chat_id = $1 AND message_id = $2`

	msg, err := scanMessage(d.db.QueryRowContext(ctx, query, chatID, messageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessages) ([]*store.Message, error) {
	where := "chat_id = $1"
	if !find.IncludeDeleted {
		where += " AND NOT deleted"
	}
	// Newest window first, then flipped so callers read oldest to newest.
	query := `
		SELECT ` + messageFields + ` FROM (
			SELECT ` + messageFields + `
			FROM messages
			WHERE ` + where + `
			ORDER BY timestamp DESC, umid DESC
			LIMIT $2
		) window
		ORDER BY timestamp ASC, umid ASC
	`

	rows, err := d.db.QueryContext(ctx, query, find.ChatID, find.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	query := `UPDATE messages SET text = $3 WHERE chat_id = $1 AND message_id = $2`
	if _, err := d.db.ExecContext(ctx, query, chatID, messageID, text); err != nil {
		return fmt.Errorf("failed to update message text: %w", err)
	}
	return nil
}

func (d *DB) SetMessageDeleted(ctx context.Context, chatID, messageID int64, deleted bool) (bool, error) {
	query := `UPDATE messages SET deleted = $3 WHERE chat_id = $1 AND message_id = $2 AND deleted <> $3`
	res, err := d.db.ExecContext(ctx, query, chatID, messageID, deleted)
	if err != nil {
		return false, fmt.Errorf("failed to set message deleted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (d *DB) ResetMessages(ctx context.Context, chatID int64) (int64, error) {
	query := `UPDATE messages SET deleted = TRUE WHERE chat_id = $1 AND NOT deleted`
	res, err := d.db.ExecContext(ctx, query, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset messages: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (d *DB) PruneMessages(ctx context.Context, olderThan time.Time, chatID *int64) (*store.PruneResult, error) {
	var sizeBefore int64
	if err := d.db.QueryRowContext(ctx, `SELECT pg_total_relation_size('messages')`).Scan(&sizeBefore); err != nil {
		return nil, fmt.Errorf("failed to measure messages size: %w", err)
	}

	var res sql.Result
	var err error
	if chatID != nil {
		res, err = d.db.ExecContext(ctx,
			`DELETE FROM messages WHERE timestamp < $1 AND chat_id = $2`, olderThan, *chatID)
	} else {
		res, err = d.db.ExecContext(ctx,
			`DELETE FROM messages WHERE timestamp < $1`, olderThan)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prune messages: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	// VACUUM FULL rewrites the table and returns the space to the OS; it
	// takes an exclusive lock, acceptable for an admin-only operation.
	if _, err := d.db.ExecContext(ctx, `VACUUM FULL messages`); err != nil {
		return nil, fmt.Errorf("failed to vacuum messages: %w", err)
	}

	var sizeAfter int64
	if err := d.db.QueryRowContext(ctx, `SELECT pg_total_relation_size('messages')`).Scan(&sizeAfter); err != nil {
		return nil, fmt.Errorf("failed to measure messages size: %w", err)
	}

	freed := sizeBefore - sizeAfter
	if freed < 0 {
		freed = 0
	}
	return &store.PruneResult{RowsDeleted: deleted, FreedBytes: freed}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: i != 0}
}
