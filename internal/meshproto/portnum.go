package meshproto

import meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"

// Kind is MeshMonitor's own classification of a decoded Data payload,
// collapsing the wire PortNum down to the handful of kinds the ingest
// pipeline dispatches on. Portnums the store has no
// dedicated table for fall through to KindOpaque; the ingest pipeline only
// logs those, and their payload bytes are not stored.
type Kind int

const (
	KindOpaque Kind = iota
	KindTextMessage
	KindPosition
	KindNodeInfo
	KindRouting
	KindTelemetry
	KindTraceroute
	KindNeighborInfo
)

// ClassifyPortNum maps a wire PortNum to a Kind.
func ClassifyPortNum(p meshtastic.PortNum) Kind {
	switch p {
	case meshtastic.PortNum_TEXT_MESSAGE_APP:
		return KindTextMessage
	case meshtastic.PortNum_POSITION_APP:
		return KindPosition
	case meshtastic.PortNum_NODEINFO_APP:
		return KindNodeInfo
	case meshtastic.PortNum_ROUTING_APP:
		return KindRouting
	case meshtastic.PortNum_TELEMETRY_APP:
		return KindTelemetry
	case meshtastic.PortNum_TRACEROUTE_APP:
		return KindTraceroute
	case meshtastic.PortNum_NEIGHBORINFO_APP:
		return KindNeighborInfo
	default:
		return KindOpaque
	}
}

func (k Kind) String() string {
	switch k {
	case KindTextMessage:
		return "text_message"
	case KindPosition:
		return "position"
	case KindNodeInfo:
		return "node_info"
	case KindRouting:
		return "routing"
	case KindTelemetry:
		return "telemetry"
	case KindTraceroute:
		return "traceroute"
	case KindNeighborInfo:
		return "neighbor_info"
	default:
		return "opaque"
	}
}
