package store

import (
	"context"
	"fmt"
)

// InsertTelemetry appends one telemetry metric reading.
func (db *DB) InsertTelemetry(ctx context.Context, s TelemetrySample) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO telemetry (node_num, kind, metric, value, timestamp) VALUES (?,?,?,?,?)
	`, s.NodeNum, s.Kind, s.Metric, s.Value, s.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert telemetry node=%d metric=%s: %w", s.NodeNum, s.Metric, err)
	}
	return nil
}

// ListTelemetry returns telemetry samples for a node, newest first.
func (db *DB) ListTelemetry(ctx context.Context, nodeNum uint32, kind string, limit int) ([]TelemetrySample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT node_num, kind, metric, value, timestamp FROM telemetry
		WHERE node_num = ? AND (? = '' OR kind = ?)
		ORDER BY timestamp DESC LIMIT ?`, nodeNum, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list telemetry node=%d: %w", nodeNum, err)
	}
	defer rows.Close()

	var out []TelemetrySample
	for rows.Next() {
		var s TelemetrySample
		if err := rows.Scan(&s.NodeNum, &s.Kind, &s.Metric, &s.Value, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan telemetry: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AvailableTelemetryNodes returns, for each node that has at least one
// telemetry sample, which kinds are available.
func (db *DB) AvailableTelemetryNodes(ctx context.Context) (map[uint32][]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT node_num, kind FROM telemetry`)
	if err != nil {
		return nil, fmt.Errorf("store: available telemetry nodes: %w", err)
	}
	defer rows.Close()

	out := map[uint32][]string{}
	for rows.Next() {
		var nodeNum uint32
		var kind string
		if err := rows.Scan(&nodeNum, &kind); err != nil {
			return nil, fmt.Errorf("store: scan available telemetry: %w", err)
		}
		out[nodeNum] = append(out[nodeNum], kind)
	}
	return out, rows.Err()
}
