package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertChannel creates or updates a channel slot (index 0-7).
func (db *DB) UpsertChannel(ctx context.Context, c Channel, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO channels (id, name, psk, role, uplink_enabled, downlink_enabled, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name             = excluded.name,
			psk              = excluded.psk,
			role             = excluded.role,
			uplink_enabled   = excluded.uplink_enabled,
			downlink_enabled = excluded.downlink_enabled,
			updated_at       = excluded.updated_at
	`, c.ID, c.Name, c.PSK, c.Role, c.UplinkEnabled, c.DownlinkEnabled, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert channel %d: %w", c.ID, err)
	}
	return nil
}

// ListChannels returns every configured channel slot, including disabled
// ones.
func (db *DB) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, psk, role, uplink_enabled, downlink_enabled, created_at, updated_at
		FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.PSK, &c.Role, &c.UplinkEnabled, &c.DownlinkEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChannel fetches a single channel by index.
func (db *DB) GetChannel(ctx context.Context, id int) (*Channel, error) {
	var c Channel
	err := db.QueryRowContext(ctx, `
		SELECT id, name, psk, role, uplink_enabled, downlink_enabled, created_at, updated_at
		FROM channels WHERE id = ?`, id).Scan(
		&c.ID, &c.Name, &c.PSK, &c.Role, &c.UplinkEnabled, &c.DownlinkEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get channel %d: %w", id, err)
	}
	return &c, nil
}
