package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertTraceroute inserts a traceroute result, deduplicating by
// (fromNodeNum, toNodeNum, timestamp) within a 1-second window. hopCount is recomputed from len(route) regardless of what the
// caller passed in.
func (db *DB) UpsertTraceroute(ctx context.Context, tr Traceroute) error {
	tr.HopCount = len(tr.Route)

	var dupe int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM traceroutes
		WHERE from_node_num = ? AND to_node_num = ? AND ABS(timestamp - ?) <= 1
	`, tr.FromNodeNum, tr.ToNodeNum, tr.Timestamp).Scan(&dupe)
	if err != nil {
		return fmt.Errorf("store: traceroute dedup check: %w", err)
	}
	if dupe > 0 {
		return nil
	}

	route, err := json.Marshal(tr.Route)
	if err != nil {
		return fmt.Errorf("store: marshal traceroute route: %w", err)
	}
	routeBack, err := json.Marshal(tr.RouteBack)
	if err != nil {
		return fmt.Errorf("store: marshal traceroute route back: %w", err)
	}
	snrTowards, err := json.Marshal(tr.SNRTowards)
	if err != nil {
		return fmt.Errorf("store: marshal traceroute snr towards: %w", err)
	}
	snrBack, err := json.Marshal(tr.SNRBack)
	if err != nil {
		return fmt.Errorf("store: marshal traceroute snr back: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO traceroutes (from_node_num, to_node_num, route, route_back, snr_towards, snr_back, hop_count, timestamp)
		VALUES (?,?,?,?,?,?,?,?)
	`, tr.FromNodeNum, tr.ToNodeNum, string(route), string(routeBack), string(snrTowards), string(snrBack), tr.HopCount, tr.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert traceroute: %w", err)
	}
	return nil
}

// RecentTraceroutes returns the most recent traceroutes, newest first.
func (db *DB) RecentTraceroutes(ctx context.Context, limit int) ([]Traceroute, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, from_node_num, to_node_num, route, route_back, snr_towards, snr_back, hop_count, timestamp
		FROM traceroutes ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent traceroutes: %w", err)
	}
	defer rows.Close()

	var out []Traceroute
	for rows.Next() {
		var tr Traceroute
		var route, routeBack, snrTowards, snrBack string
		if err := rows.Scan(&tr.ID, &tr.FromNodeNum, &tr.ToNodeNum, &route, &routeBack, &snrTowards, &snrBack, &tr.HopCount, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan traceroute: %w", err)
		}
		_ = json.Unmarshal([]byte(route), &tr.Route)
		_ = json.Unmarshal([]byte(routeBack), &tr.RouteBack)
		_ = json.Unmarshal([]byte(snrTowards), &tr.SNRTowards)
		_ = json.Unmarshal([]byte(snrBack), &tr.SNRBack)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// OldestTracerouteTarget returns the node that has gone longest without a
// traceroute among nodes heard since sinceUnix, for the scheduler's
// traceroute-rotation job. Returns 0, false if no candidate.
func (db *DB) OldestTracerouteTarget(ctx context.Context, sinceUnix int64) (uint32, bool, error) {
	var nodeNum uint32
	err := db.QueryRowContext(ctx, `
		SELECT n.node_num FROM nodes n
		LEFT JOIN (
			SELECT to_node_num, MAX(timestamp) AS last_tr FROM traceroutes GROUP BY to_node_num
		) t ON t.to_node_num = n.node_num
		WHERE n.last_heard >= ?
		ORDER BY COALESCE(t.last_tr, 0) ASC
		LIMIT 1
	`, sinceUnix).Scan(&nodeNum)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: oldest traceroute target: %w", err)
	}
	return nodeNum, true, nil
}
