// Package ingest implements the Ingest Pipeline: it decodes
// each FromRadio frame the Device Session hands it, decrypts channel
// payloads, dispatches on portnum, and mutates the Store accordingly.
package ingest

import (
	"context"
	"fmt"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

// AckResolver is the subset of *session.Session the pipeline needs to
// resolve outbound ACKs; declared locally to avoid an import cycle between
// internal/ingest and internal/session (the gateway wires the concrete
// type in).
type AckResolver interface {
	ResolveAck(packetID uint32)
}

// EventPublisher is the subset of *eventbus.Bus the pipeline needs.
type EventPublisher interface {
	PublishNode(n store.Node)
	PublishMessage(m store.Message)
	PublishPosition(nodeID string, p store.PositionHistoryPoint)
	PublishTelemetry(s store.TelemetrySample)
	PublishTraceroute(tr store.Traceroute)
	PublishNeighbor(nodeNum uint32, edges []store.NeighborEdge)
}

// AutomationHook lets internal/automation react to freshly-ingested events
// without the pipeline depending on automation's policy details.
type AutomationHook interface {
	OnTextMessage(ctx context.Context, m store.Message, senderKnown bool)
	OnNodeInfo(ctx context.Context, n store.Node, firstSighting bool)
}

// Pipeline wires decode/decrypt/dispatch to the Store.
type Pipeline struct {
	db         *store.DB
	writer     *store.Writer
	codec      *meshproto.Codec
	log        *zap.Logger
	localNode  uint32
	channelKey func(channel int32) []byte // resolves PSK per channel index

	acks       AckResolver
	events     EventPublisher
	automation AutomationHook
}

// New builds a Pipeline. channelKey resolves a channel index to its
// decryption key (internal/store channels + meshproto.ResolveChannelKey).
func New(db *store.DB, writer *store.Writer, log *zap.Logger, localNode uint32, channelKey func(int32) []byte, acks AckResolver, events EventPublisher, automation AutomationHook) *Pipeline {
	return &Pipeline{
		db: db, writer: writer, codec: meshproto.New(), log: log,
		localNode: localNode, channelKey: channelKey,
		acks: acks, events: events, automation: automation,
	}
}

// HandleFrame decodes one FromRadio payload and dispatches its contents.
// Inbound packet order is preserved by calling this synchronously from the
// Device Session's single read loop.
func (p *Pipeline) HandleFrame(ctx context.Context, payload []byte) {
	fr, err := p.codec.DecodeFromRadio(payload)
	if err != nil {
		p.log.Warn("ingest: undecodable frame", zap.Error(err))
		return
	}

	switch v := fr.GetPayloadVariant().(type) {
	case *meshtastic.FromRadio_Packet:
		p.handlePacket(ctx, v.Packet)
	case *meshtastic.FromRadio_NodeInfo:
		p.handleNodeInfoMessage(ctx, v.NodeInfo)
	case *meshtastic.FromRadio_MyInfo:
		p.localNode = v.MyInfo.GetMyNodeNum()
	case *meshtastic.FromRadio_Channel:
		p.handleChannel(ctx, v.Channel)
	default:
		// want_config/config_complete/queue-status frames are handled by
		// internal/session; anything else is silently ignored here.
	}
}

func (p *Pipeline) handlePacket(ctx context.Context, packet *meshtastic.MeshPacket) {
	key := p.channelKey(int32(packet.GetChannel()))
	data, err := meshproto.DecryptPacket(packet, key)
	if err != nil {
		p.log.Warn("ingest: keeping packet as encrypted-opaque", zap.Uint32("packetId", packet.GetId()), zap.Error(err))
		p.persistOpaque(ctx, packet, nil)
		return
	}

	kind := meshproto.ClassifyPortNum(data.GetPortnum())
	switch kind {
	case meshproto.KindTextMessage:
		p.handleTextMessage(ctx, packet, data)
	case meshproto.KindPosition:
		p.handlePosition(ctx, packet, data)
	case meshproto.KindNodeInfo:
		p.handleNodeInfoData(ctx, packet, data)
	case meshproto.KindRouting:
		p.handleRouting(ctx, packet, data)
	case meshproto.KindTelemetry:
		p.handleTelemetry(ctx, packet, data)
	case meshproto.KindTraceroute:
		p.handleTraceroute(ctx, packet, data)
	case meshproto.KindNeighborInfo:
		p.handleNeighborInfo(ctx, packet, data)
	default:
		p.persistOpaque(ctx, packet, data)
	}
}

func (p *Pipeline) persistOpaque(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	// Opaque frames are logged rather than stored in a typed table: none
	// of the typed tables has a slot for an uninterpreted portnum.
	portnum := int32(-1)
	if data != nil {
		portnum = int32(data.GetPortnum())
	}
	p.log.Debug("ingest: opaque packet",
		zap.Uint32("from", packet.GetFrom()),
		zap.Uint32("packetId", packet.GetId()),
		zap.Int32("portnum", portnum),
	)
}

func nodeIDHex(nodeNum uint32) string {
	return fmt.Sprintf("!%08x", nodeNum)
}

func messageID(fromNode, packetID uint32) string {
	return fmt.Sprintf("%d_%d", fromNode, packetID)
}

func unixNow() int64 {
	return time.Now().Unix()
}
