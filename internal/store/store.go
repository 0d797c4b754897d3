// Package store manages MeshMonitor's single SQLite database: schema
// migrations, a single-writer mutation path, and typed accessors for every
// persisted entity.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"go.uber.org/zap"
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite file at path in WAL mode with a single
// writer connection.
func Open(path string, log *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	raw.SetMaxOpenConns(1)
	return &DB{DB: raw, log: log}, nil
}

// migrations are applied in order, each its own transaction, and are
// forward-only.
var migrations = []string{
	ddlSettings,
	ddlNodes,
	ddlMessages,
	ddlChannels,
	ddlTelemetry,
	ddlPositionHistory,
	ddlTraceroutes,
	ddlNeighborInfo,
	ddlReadState,
}

// Migrate applies every pending migration and records the resulting schema
// version in the settings table.
func Migrate(db *DB) error {
	for i, stmt := range migrations {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("store: migrate %d: begin: %w", i, err)
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migrate %d: %w", i, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: migrate %d: commit: %w", i, err)
		}
	}
	if _, err := db.Exec(
		`INSERT INTO settings (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", len(migrations)),
	); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the schema version recorded by the last Migrate
// call.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("store: parse schema version %q: %w", v, err)
	}
	return n, nil
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlSettings = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const ddlNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    node_num              INTEGER PRIMARY KEY,
    node_id               TEXT NOT NULL UNIQUE,
    long_name             TEXT,
    short_name            TEXT,
    hw_model              TEXT,
    role                  TEXT,
    public_key            TEXT,
    lat                   REAL,
    lon                   REAL,
    alt                   REAL,
    precision_bits        INTEGER,
    battery_level         INTEGER,
    voltage               REAL,
    channel_utilization   REAL,
    air_util_tx           REAL,
    last_heard            INTEGER NOT NULL DEFAULT 0,
    snr                   REAL,
    rssi                  INTEGER,
    hops_away             INTEGER,
    via_mqtt              INTEGER NOT NULL DEFAULT 0,
    is_favorite           INTEGER NOT NULL DEFAULT 0,
    is_mobile             INTEGER NOT NULL DEFAULT 0,
    welcomed_at           INTEGER
);
CREATE INDEX IF NOT EXISTS idx_nodes_last_heard ON nodes (last_heard DESC);
`

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id            TEXT PRIMARY KEY,        -- {nodeNum}_{packetId}
    from_node_num INTEGER NOT NULL,
    to_node_num   INTEGER NOT NULL,
    channel       INTEGER NOT NULL DEFAULT 0, -- -1 for direct messages
    portnum       INTEGER NOT NULL,
    text          TEXT NOT NULL DEFAULT '',
    timestamp     INTEGER NOT NULL,
    hop_start     INTEGER,
    hop_limit     INTEGER,
    reply_id      INTEGER,
    emoji         INTEGER NOT NULL DEFAULT 0,
    acknowledged  INTEGER NOT NULL DEFAULT 0,
    ack_failed    INTEGER NOT NULL DEFAULT 0,
    bridge        INTEGER NOT NULL DEFAULT 0,
    is_tapback    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_messages_from_packet ON messages (from_node_num, id);
`

const ddlChannels = `
CREATE TABLE IF NOT EXISTS channels (
    id               INTEGER PRIMARY KEY, -- channel index 0-7
    name             TEXT NOT NULL DEFAULT '',
    psk              TEXT NOT NULL DEFAULT 'AQ==',
    role             INTEGER NOT NULL DEFAULT 0, -- 0 disabled, 1 primary, 2 secondary
    uplink_enabled   INTEGER NOT NULL DEFAULT 0,
    downlink_enabled INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
`

const ddlTelemetry = `
CREATE TABLE IF NOT EXISTS telemetry (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    node_num  INTEGER NOT NULL,
    kind      TEXT NOT NULL, -- device, environment, power, local-stats
    metric    TEXT NOT NULL,
    value     REAL NOT NULL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_node_time ON telemetry (node_num, timestamp DESC);
`

const ddlPositionHistory = `
CREATE TABLE IF NOT EXISTS position_history (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id   TEXT NOT NULL,
    lat       REAL NOT NULL,
    lon       REAL NOT NULL,
    alt       REAL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_history_node_time ON position_history (node_id, timestamp DESC);
`

const ddlTraceroutes = `
CREATE TABLE IF NOT EXISTS traceroutes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    from_node_num INTEGER NOT NULL,
    to_node_num   INTEGER NOT NULL,
    route         TEXT NOT NULL DEFAULT '[]', -- JSON array, destination -> source
    route_back    TEXT NOT NULL DEFAULT '[]',
    snr_towards   TEXT NOT NULL DEFAULT '[]',
    snr_back      TEXT NOT NULL DEFAULT '[]',
    hop_count     INTEGER NOT NULL DEFAULT 0,
    timestamp     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traceroutes_pair_time ON traceroutes (from_node_num, to_node_num, timestamp DESC);
`

const ddlNeighborInfo = `
CREATE TABLE IF NOT EXISTS neighbor_info (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    node_num          INTEGER NOT NULL,
    neighbor_node_num INTEGER NOT NULL,
    snr               REAL,
    last_rx_time      INTEGER,
    timestamp         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_neighbor_info_node ON neighbor_info (node_num);
`

const ddlReadState = `
CREATE TABLE IF NOT EXISTS read_state (
    scope_key           TEXT PRIMARY KEY, -- userOrAnonymous + ':' + channelId|peerNodeId
    last_read_timestamp INTEGER NOT NULL DEFAULT 0
);
`
