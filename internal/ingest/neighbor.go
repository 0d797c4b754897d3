package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// handleNeighborInfo replaces the reporting node's neighbor set,
// timestamping each edge.
func (p *Pipeline) handleNeighborInfo(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	var ni meshtastic.NeighborInfo
	if err := unmarshalInto(data.GetPayload(), &ni); err != nil {
		p.log.Warn("ingest: undecodable NeighborInfo payload", zap.Error(err))
		return
	}

	nodeNum := ni.GetNodeId()
	now := unixNow()
	edges := make([]store.NeighborEdge, 0, len(ni.GetNeighbors()))
	for _, nb := range ni.GetNeighbors() {
		edges = append(edges, store.NeighborEdge{
			NodeNum:         nodeNum,
			NeighborNodeNum: nb.GetNodeId(),
			SNR:             float64(nb.GetSnr()),
			LastRxTime:      int64(nb.GetLastRxTime()),
			Timestamp:       now,
		})
	}

	if err := p.db.ReplaceNeighbors(ctx, nodeNum, edges, now); err != nil {
		p.log.Error("ingest: replace neighbors failed", zap.Uint32("node", nodeNum), zap.Error(err))
		return
	}
	if p.events != nil {
		p.events.PublishNeighbor(nodeNum, edges)
	}
}
