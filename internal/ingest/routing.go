package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"
)

// handleRouting correlates ROUTING_APP replies with pending sends.
// Unknown/undocumented routing variants are left as "no decision"
// (acknowledged stays false) rather than guessed as ackFailed; only an
// explicit error reply marks ackFailed, and only a timeout
// (internal/session.ErrAckTimeout, handled by the caller that issued the
// send) marks it otherwise.
func (p *Pipeline) handleRouting(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	requestID := data.GetRequestId()
	if requestID == 0 {
		return
	}

	var routing meshtastic.Routing
	if err := unmarshalInto(data.GetPayload(), &routing); err != nil {
		p.log.Warn("ingest: undecodable Routing payload", zap.Error(err))
		return
	}

	id := messageID(packet.GetTo(), requestID)
	errReason := routing.GetErrorReason()

	if _, known := meshtastic.Routing_Error_name[int32(errReason)]; !known {
		// Unrecognized variant: no decision. Leave acknowledged false
		// until the session's own ACK timeout fires.
		return
	}

	if errReason == meshtastic.Routing_NONE {
		if p.acks != nil {
			p.acks.ResolveAck(requestID)
		}
		if err := p.db.MarkAcknowledged(ctx, id); err != nil {
			p.log.Error("ingest: mark acknowledged failed", zap.String("id", id), zap.Error(err))
		}
		return
	}

	if err := p.db.MarkAckFailed(ctx, id); err != nil {
		p.log.Error("ingest: mark ack failed", zap.String("id", id), zap.Error(err))
	}
}
