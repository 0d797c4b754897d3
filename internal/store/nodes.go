package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertNode inserts a node on first sighting or merges non-zero fields
// into an existing row. Callers pass only the fields they learned from the
// current packet; zero-valued fields are left untouched on conflict.
func (db *DB) UpsertNode(ctx context.Context, n Node) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO nodes (
			node_num, node_id, long_name, short_name, hw_model, role, public_key,
			lat, lon, alt, precision_bits,
			battery_level, voltage, channel_utilization, air_util_tx,
			last_heard, snr, rssi, hops_away, via_mqtt, is_favorite, is_mobile, welcomed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(node_num) DO UPDATE SET
			node_id             = excluded.node_id,
			long_name           = CASE WHEN excluded.long_name  <> '' THEN excluded.long_name  ELSE nodes.long_name  END,
			short_name          = CASE WHEN excluded.short_name <> '' THEN excluded.short_name ELSE nodes.short_name END,
			hw_model            = CASE WHEN excluded.hw_model   <> '' THEN excluded.hw_model   ELSE nodes.hw_model   END,
			role                = CASE WHEN excluded.role       <> '' THEN excluded.role       ELSE nodes.role       END,
			public_key          = CASE WHEN excluded.public_key <> '' THEN excluded.public_key ELSE nodes.public_key END,
			lat                 = CASE WHEN excluded.lat IS NOT NULL THEN excluded.lat ELSE nodes.lat END,
			lon                 = CASE WHEN excluded.lon IS NOT NULL THEN excluded.lon ELSE nodes.lon END,
			alt                 = CASE WHEN excluded.alt IS NOT NULL THEN excluded.alt ELSE nodes.alt END,
			precision_bits      = CASE WHEN excluded.precision_bits IS NOT NULL THEN excluded.precision_bits ELSE nodes.precision_bits END,
			battery_level       = CASE WHEN excluded.battery_level IS NOT NULL THEN excluded.battery_level ELSE nodes.battery_level END,
			voltage             = CASE WHEN excluded.voltage > 0 THEN excluded.voltage ELSE nodes.voltage END,
			channel_utilization = CASE WHEN excluded.channel_utilization > 0 THEN excluded.channel_utilization ELSE nodes.channel_utilization END,
			air_util_tx         = CASE WHEN excluded.air_util_tx > 0 THEN excluded.air_util_tx ELSE nodes.air_util_tx END,
			last_heard          = MAX(nodes.last_heard, excluded.last_heard),
			snr                 = CASE WHEN excluded.snr <> 0 THEN excluded.snr ELSE nodes.snr END,
			rssi                = CASE WHEN excluded.rssi <> 0 THEN excluded.rssi ELSE nodes.rssi END,
			hops_away           = CASE WHEN excluded.hops_away IS NOT NULL THEN excluded.hops_away ELSE nodes.hops_away END,
			via_mqtt            = excluded.via_mqtt OR nodes.via_mqtt,
			is_favorite         = nodes.is_favorite,
			is_mobile           = nodes.is_mobile
	`,
		n.NodeNum, n.NodeID, n.LongName, n.ShortName, n.HWModel, n.Role, n.PublicKey,
		nullableFloat(n.HasPosition, n.Lat), nullableFloat(n.HasPosition, n.Lon), nullableFloat(n.HasPosition, n.Alt),
		nullableInt(n.HasPosition, n.PrecisionBits),
		nullableInt(n.HasBattery, n.BatteryLevel), n.Voltage, n.ChannelUtilization, n.AirUtilTx,
		n.LastHeard, n.SNR, n.RSSI, nullableInt(n.HopsAwayKnown, n.HopsAway), n.ViaMQTT, n.IsFavorite, n.IsMobile, nullableInt(n.WelcomedAt != 0, int(n.WelcomedAt)),
	)
	if err != nil {
		return fmt.Errorf("store: upsert node %d: %w", n.NodeNum, err)
	}
	return nil
}

func nullableFloat(ok bool, v float64) interface{} {
	if !ok {
		return nil
	}
	return v
}

func nullableInt(ok bool, v int) interface{} {
	if !ok {
		return nil
	}
	return v
}

// GetNode fetches one node by its node number.
func (db *DB) GetNode(ctx context.Context, nodeNum uint32) (*Node, error) {
	row := db.QueryRowContext(ctx, nodeRowQuery+` WHERE node_num = ?`, nodeNum)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get node %d: %w", nodeNum, err)
	}
	return n, nil
}

// ListNodes returns every known node, most recently heard first.
func (db *DB) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := db.QueryContext(ctx, nodeRowQuery+` ORDER BY last_heard DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// SetFavorite updates the local favorite flag for a node.
func (db *DB) SetFavorite(ctx context.Context, nodeNum uint32, fav bool) error {
	_, err := db.ExecContext(ctx, `UPDATE nodes SET is_favorite = ? WHERE node_num = ?`, fav, nodeNum)
	if err != nil {
		return fmt.Errorf("store: set favorite %d: %w", nodeNum, err)
	}
	return nil
}

// SetMobile updates the derived mobility flag (computed by internal/derive,
// written by the ingest pipeline).
func (db *DB) SetMobile(ctx context.Context, nodeNum uint32, mobile bool) error {
	_, err := db.ExecContext(ctx, `UPDATE nodes SET is_mobile = ? WHERE node_num = ?`, mobile, nodeNum)
	if err != nil {
		return fmt.Errorf("store: set mobile %d: %w", nodeNum, err)
	}
	return nil
}

// MarkWelcomed records the one-time auto-welcome timestamp for a node.
func (db *DB) MarkWelcomed(ctx context.Context, nodeNum uint32, at int64) error {
	_, err := db.ExecContext(ctx, `UPDATE nodes SET welcomed_at = ? WHERE node_num = ? AND welcomed_at IS NULL`, at, nodeNum)
	if err != nil {
		return fmt.Errorf("store: mark welcomed %d: %w", nodeNum, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const nodeRowQuery = `
	SELECT node_num, node_id, long_name, short_name, hw_model, role, public_key,
	       lat, lon, alt, precision_bits,
	       battery_level, voltage, channel_utilization, air_util_tx,
	       last_heard, snr, rssi, hops_away, via_mqtt, is_favorite, is_mobile, welcomed_at
	FROM nodes`

func scanNode(r rowScanner) (*Node, error) {
	var n Node
	var lat, lon, alt, voltage, channelUtil, airUtil, snr sql.NullFloat64
	var precisionBits, batteryLevel, rssi, hopsAway sql.NullInt64
	var welcomedAt sql.NullInt64
	var longName, shortName, hwModel, role, publicKey sql.NullString

	if err := r.Scan(
		&n.NodeNum, &n.NodeID, &longName, &shortName, &hwModel, &role, &publicKey,
		&lat, &lon, &alt, &precisionBits,
		&batteryLevel, &voltage, &channelUtil, &airUtil,
		&n.LastHeard, &snr, &rssi, &hopsAway, &n.ViaMQTT, &n.IsFavorite, &n.IsMobile, &welcomedAt,
	); err != nil {
		return nil, err
	}

	n.LongName, n.ShortName, n.HWModel, n.Role = longName.String, shortName.String, hwModel.String, role.String
	n.PublicKey = publicKey.String
	if lat.Valid && lon.Valid {
		n.Lat, n.Lon, n.HasPosition = lat.Float64, lon.Float64, true
		n.Alt = alt.Float64
	}
	if precisionBits.Valid {
		n.PrecisionBits = int(precisionBits.Int64)
	}
	if batteryLevel.Valid {
		n.BatteryLevel, n.HasBattery = int(batteryLevel.Int64), true
	}
	n.Voltage, n.ChannelUtilization, n.AirUtilTx = voltage.Float64, channelUtil.Float64, airUtil.Float64
	n.SNR = snr.Float64
	n.RSSI = int(rssi.Int64)
	if hopsAway.Valid {
		n.HopsAway, n.HopsAwayKnown = int(hopsAway.Int64), true
	}
	if welcomedAt.Valid {
		n.WelcomedAt = welcomedAt.Int64
	}
	return &n, nil
}
