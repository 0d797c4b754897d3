package ingest

import (
	"context"
	"database/sql"
	"math"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/derive"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

const (
	positionDisplacementMeters = 10.0
	positionMinInterval        = 60 // seconds
)

func (p *Pipeline) handlePosition(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	var pos meshtastic.Position
	if err := unmarshalInto(data.GetPayload(), &pos); err != nil {
		p.log.Warn("ingest: undecodable Position payload", zap.Error(err))
		return
	}

	nodeNum := packet.GetFrom()
	nodeID := nodeIDHex(nodeNum)
	lat := float64(pos.GetLatitudeI()) * 1e-7
	lon := float64(pos.GetLongitudeI()) * 1e-7
	alt := float64(pos.GetAltitude())
	now := unixNow()

	shouldAppendHistory := true
	if last, err := p.db.RecentPositions(ctx, nodeID, 0); err == nil && len(last) > 0 {
		prev := last[len(last)-1]
		d := haversineMeters(prev.Lat, prev.Lon, lat, lon)
		dt := now - prev.Timestamp
		shouldAppendHistory = d > positionDisplacementMeters || dt > positionMinInterval
	}

	err := p.writer.Submit(ctx, func(opCtx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(opCtx, `
			UPDATE nodes SET lat = ?, lon = ?, alt = ?, precision_bits = ?, last_heard = MAX(last_heard, ?)
			WHERE node_num = ?
		`, lat, lon, alt, pos.GetPrecisionBits(), now, nodeNum); err != nil {
			return err
		}
		if shouldAppendHistory {
			if _, err := tx.ExecContext(opCtx, `
				INSERT INTO position_history (node_id, lat, lon, alt, timestamp) VALUES (?,?,?,?,?)
			`, nodeID, lat, lon, alt, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.log.Error("ingest: update position failed", zap.Uint32("node", nodeNum), zap.Error(err))
		return
	}

	if shouldAppendHistory {
		p.recomputeMobility(ctx, nodeNum, nodeID, now)
	}

	if p.events != nil {
		p.events.PublishPosition(nodeID, store.PositionHistoryPoint{NodeID: nodeID, Lat: lat, Lon: lon, Alt: alt, Timestamp: now})
	}
}

// recomputeMobility refreshes the derived isMobile flag from the node's
// trailing-window position history whenever a new point lands.
func (p *Pipeline) recomputeMobility(ctx context.Context, nodeNum uint32, nodeID string, now int64) {
	since := now - int64(derive.MobilityWindow.Seconds())
	positions, err := p.db.RecentPositions(ctx, nodeID, since)
	if err != nil {
		p.log.Warn("ingest: mobility recompute read failed", zap.String("node", nodeID), zap.Error(err))
		return
	}
	if err := p.db.SetMobile(ctx, nodeNum, derive.IsMobile(positions)); err != nil {
		p.log.Warn("ingest: mobility flag write failed", zap.String("node", nodeID), zap.Error(err))
	}
}

// haversineMeters is the great-circle distance between two lat/lon points,
// used for the 10m/60s position-history threshold. internal/derive's
// mobility computation uses its own km-scale haversineKM.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
