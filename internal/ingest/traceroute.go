package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// handleTraceroute records a TRACEROUTE_APP result; dedup and hopCount
// recomputation happen in store.UpsertTraceroute.
func (p *Pipeline) handleTraceroute(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	var rd meshtastic.RouteDiscovery
	if err := unmarshalInto(data.GetPayload(), &rd); err != nil {
		p.log.Warn("ingest: undecodable RouteDiscovery payload", zap.Error(err))
		return
	}

	tr := store.Traceroute{
		FromNodeNum: packet.GetFrom(),
		ToNodeNum:   packet.GetTo(),
		Route:       rd.GetRoute(),
		RouteBack:   rd.GetRouteBack(),
		SNRTowards:  rd.GetSnrTowards(),
		SNRBack:     rd.GetSnrBack(),
		Timestamp:   unixNow(),
	}
	if err := p.db.UpsertTraceroute(ctx, tr); err != nil {
		p.log.Error("ingest: upsert traceroute failed", zap.Uint32("from", tr.FromNodeNum), zap.Error(err))
		return
	}
	if p.events != nil {
		p.events.PublishTraceroute(tr)
	}
}
