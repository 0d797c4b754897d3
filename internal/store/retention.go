package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy is the set of per-kind horizons applied by Sweep. The
// manual Purge* functions take no policy and delete unconditionally.
type RetentionPolicy struct {
	Telemetry    time.Duration
	Messages     time.Duration
	PositionHist time.Duration
	NeighborInfo time.Duration
}

// Sweep deletes rows older than each kind's horizon, run hourly by the
// scheduler.
func (db *DB) Sweep(ctx context.Context, p RetentionPolicy, now time.Time) error {
	cutoffs := map[string]int64{
		"telemetry":        now.Add(-p.Telemetry).Unix(),
		"messages":         now.Add(-p.Messages).Unix(),
		"position_history": now.Add(-p.PositionHist).Unix(),
		"neighbor_info":    now.Add(-p.NeighborInfo).Unix(),
	}
	for table, cutoff := range cutoffs {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff); err != nil {
			return fmt.Errorf("store: retention sweep %s: %w", table, err)
		}
	}
	return nil
}

// PurgeNodes deletes every node and everything keyed off node identity
// (position history is keyed by nodeId string, so it's purged too). A
// destructive operator action.
func (db *DB) PurgeNodes(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: purge nodes: begin: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM neighbor_info`,
		`DELETE FROM position_history`,
		`DELETE FROM nodes`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: purge nodes: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: purge nodes: commit: %w", err)
	}
	return nil
}

// PurgeMessages deletes every message and its read-state.
func (db *DB) PurgeMessages(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: purge messages: begin: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM messages`,
		`DELETE FROM read_state`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: purge messages: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: purge messages: commit: %w", err)
	}
	return nil
}

// PurgeTelemetry deletes every telemetry sample and traceroute row (both
// are append-only observability data with no downstream cross-references).
func (db *DB) PurgeTelemetry(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: purge telemetry: begin: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM telemetry`,
		`DELETE FROM traceroutes`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: purge telemetry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: purge telemetry: commit: %w", err)
	}
	return nil
}
