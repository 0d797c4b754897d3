package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// InsertMessage inserts a message, silently no-op'ing on a duplicate
// (fromNodeNum, packetId) id. Returns true if a new row was written.
func (db *DB) InsertMessage(ctx context.Context, m Message) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, from_node_num, to_node_num, channel, portnum, text, timestamp,
			hop_start, hop_limit, reply_id, emoji, acknowledged, ack_failed, bridge, is_tapback
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.FromNodeNum, m.ToNodeNum, m.Channel, m.Portnum, m.Text, m.Timestamp,
		m.HopStart, m.HopLimit, m.ReplyID, m.Emoji, m.Acknowledged, m.AckFailed, m.Bridge, m.IsTapback,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert message %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert message %s: rows affected: %w", m.ID, err)
	}
	return n > 0, nil
}

const messageRowQuery = `
	SELECT id, from_node_num, to_node_num, channel, portnum, text, timestamp,
	       hop_start, hop_limit, reply_id, emoji, acknowledged, ack_failed, bridge, is_tapback
	FROM messages`

func scanMessage(r rowScanner) (*Message, error) {
	var m Message
	var hopStart, hopLimit, replyID sql.NullInt64
	if err := r.Scan(
		&m.ID, &m.FromNodeNum, &m.ToNodeNum, &m.Channel, &m.Portnum, &m.Text, &m.Timestamp,
		&hopStart, &hopLimit, &replyID, &m.Emoji, &m.Acknowledged, &m.AckFailed, &m.Bridge, &m.IsTapback,
	); err != nil {
		return nil, err
	}
	m.HopStart, m.HopLimit, m.ReplyID = int(hopStart.Int64), int(hopLimit.Int64), uint32(replyID.Int64)
	return &m, nil
}

// ListMessages returns up to limit feed messages, newest first. Tapback
// rows are excluded: they render under the message they react to, not as
// entries of their own (see ReactionsForPacketIDs).
func (db *DB) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, messageRowQuery+` WHERE is_tapback = 0 ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ReactionsForPacketIDs returns the tapback rows reacting to each of the
// given packet ids, keyed by the reacted-to packet id, oldest first.
func (db *DB) ReactionsForPacketIDs(ctx context.Context, packetIDs []uint32) (map[uint32][]Message, error) {
	out := map[uint32][]Message{}
	if len(packetIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(packetIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(packetIDs))
	for i, id := range packetIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		messageRowQuery+` WHERE is_tapback = 1 AND reply_id IN (`+placeholders+`) ORDER BY timestamp ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("store: reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan reaction: %w", err)
		}
		out[m.ReplyID] = append(out[m.ReplyID], *m)
	}
	return out, rows.Err()
}

// FindMessage looks up a message by composite id for ACK
// correlation.
func (db *DB) FindMessage(ctx context.Context, id string) (*Message, error) {
	row := db.QueryRowContext(ctx, messageRowQuery+` WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find message %s: %w", id, err)
	}
	return m, nil
}

// MarkAcknowledged flags a message delivered once its ACK arrives.
func (db *DB) MarkAcknowledged(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE messages SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark acknowledged %s: %w", id, err)
	}
	return nil
}

// MarkAckFailed flags a message failed, either from an explicit routing
// error reply or a 30s ACK timeout.
func (db *DB) MarkAckFailed(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE messages SET ack_failed = 1 WHERE id = ? AND acknowledged = 0`, id)
	if err != nil {
		return fmt.Errorf("store: mark ack failed %s: %w", id, err)
	}
	return nil
}

// SetReadState marks scope (a channel or a DM peer) read up to `at`.
// Idempotent: writing an earlier timestamp than the current one is a no-op.
func (db *DB) SetReadState(ctx context.Context, scopeKey string, at int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO read_state (scope_key, last_read_timestamp) VALUES (?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET last_read_timestamp = MAX(read_state.last_read_timestamp, excluded.last_read_timestamp)
	`, scopeKey, at)
	if err != nil {
		return fmt.Errorf("store: set read state %s: %w", scopeKey, err)
	}
	return nil
}

// UnreadCount returns the count of messages in scope newer than its
// recorded read-state timestamp.
func (db *DB) UnreadCount(ctx context.Context, scopeKey string, channel *int32, peerNodeNum *uint32) (int, error) {
	var lastRead int64
	err := db.QueryRowContext(ctx, `SELECT last_read_timestamp FROM read_state WHERE scope_key = ?`, scopeKey).Scan(&lastRead)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("store: unread count read state %s: %w", scopeKey, err)
	}

	var count int
	switch {
	case channel != nil:
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE channel = ? AND timestamp > ?`, *channel, lastRead).Scan(&count)
	case peerNodeNum != nil:
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE channel = -1 AND (from_node_num = ? OR to_node_num = ?) AND timestamp > ?`, *peerNodeNum, *peerNodeNum, lastRead).Scan(&count)
	default:
		return 0, fmt.Errorf("store: unread count: must specify channel or peer")
	}
	if err != nil {
		return 0, fmt.Errorf("store: unread count %s: %w", scopeKey, err)
	}
	return count, nil
}
