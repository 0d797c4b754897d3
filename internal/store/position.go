package store

import (
	"context"
	"fmt"
)

// InsertPositionHistory appends a position fix.
func (db *DB) InsertPositionHistory(ctx context.Context, p PositionHistoryPoint) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO position_history (node_id, lat, lon, alt, timestamp) VALUES (?,?,?,?,?)
	`, p.NodeID, p.Lat, p.Lon, p.Alt, p.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert position history %s: %w", p.NodeID, err)
	}
	return nil
}

// PositionHistory returns a node's position fixes within the trailing
// `sinceHours` hours, oldest first.
func (db *DB) PositionHistory(ctx context.Context, nodeID string, sinceHours int) ([]PositionHistoryPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT node_id, lat, lon, alt, timestamp FROM position_history
		WHERE node_id = ? AND timestamp >= strftime('%s','now') - ? * 3600
		ORDER BY timestamp ASC`, nodeID, sinceHours)
	if err != nil {
		return nil, fmt.Errorf("store: position history %s: %w", nodeID, err)
	}
	defer rows.Close()

	var out []PositionHistoryPoint
	for rows.Next() {
		var p PositionHistoryPoint
		if err := rows.Scan(&p.NodeID, &p.Lat, &p.Lon, &p.Alt, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan position history: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentPositions returns all of a node's positions in the trailing window,
// used by internal/derive's mobility computation.
func (db *DB) RecentPositions(ctx context.Context, nodeID string, sinceUnix int64) ([]PositionHistoryPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT node_id, lat, lon, alt, timestamp FROM position_history
		WHERE node_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC`, nodeID, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("store: recent positions %s: %w", nodeID, err)
	}
	defer rows.Close()

	var out []PositionHistoryPoint
	for rows.Next() {
		var p PositionHistoryPoint
		if err := rows.Scan(&p.NodeID, &p.Lat, &p.Lon, &p.Alt, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan recent position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
