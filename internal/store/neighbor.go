package store

import (
	"context"
	"fmt"
)

// ReplaceNeighbors replaces the entire neighbor set for nodeNum with
// edges, inside one transaction so readers never observe a
// partially-replaced set.
func (db *DB) ReplaceNeighbors(ctx context.Context, nodeNum uint32, edges []NeighborEdge, timestamp int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: replace neighbors %d: begin: %w", nodeNum, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM neighbor_info WHERE node_num = ?`, nodeNum); err != nil {
		return fmt.Errorf("store: replace neighbors %d: delete: %w", nodeNum, err)
	}
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO neighbor_info (node_num, neighbor_node_num, snr, last_rx_time, timestamp)
			VALUES (?,?,?,?,?)
		`, nodeNum, e.NeighborNodeNum, e.SNR, e.LastRxTime, timestamp); err != nil {
			return fmt.Errorf("store: replace neighbors %d: insert edge: %w", nodeNum, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: replace neighbors %d: commit: %w", nodeNum, err)
	}
	return nil
}

// ListNeighbors returns every neighbor-info edge currently on record.
func (db *DB) ListNeighbors(ctx context.Context) ([]NeighborEdge, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT node_num, neighbor_node_num, snr, last_rx_time, timestamp FROM neighbor_info`)
	if err != nil {
		return nil, fmt.Errorf("store: list neighbors: %w", err)
	}
	defer rows.Close()

	var out []NeighborEdge
	for rows.Next() {
		var e NeighborEdge
		if err := rows.Scan(&e.NodeNum, &e.NeighborNodeNum, &e.SNR, &e.LastRxTime, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan neighbor: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
