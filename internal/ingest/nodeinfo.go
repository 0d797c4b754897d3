package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// handleNodeInfoMessage handles a full FromRadio.node_info record, sent
// during the initial config dump and on-demand node-db refresh.
func (p *Pipeline) handleNodeInfoMessage(ctx context.Context, ni *meshtastic.NodeInfo) {
	n := nodeFromProto(ni.GetNum(), ni.GetUser(), ni.GetPosition(), ni.GetDeviceMetrics(), ni.GetHopsAway(), ni.GetSnr(), ni.GetLastHeard(), ni.GetViaMqtt())
	p.upsertAndPublishNode(ctx, n, false)
}

// handleNodeInfoData handles a NODEINFO_APP packet received over the
// mesh, upserting the node's identity fields.
func (p *Pipeline) handleNodeInfoData(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	var user meshtastic.User
	if err := unmarshalInto(data.GetPayload(), &user); err != nil {
		p.log.Warn("ingest: undecodable NodeInfo payload", zap.Error(err))
		return
	}

	prior, _ := p.db.GetNode(ctx, packet.GetFrom())
	firstSighting := prior == nil

	n := store.Node{
		NodeNum:   packet.GetFrom(),
		NodeID:    nodeIDHex(packet.GetFrom()),
		LongName:  user.GetLongName(),
		ShortName: user.GetShortName(),
		HWModel:   user.GetHwModel().String(),
		Role:      user.GetRole().String(),
		PublicKey: encodePublicKey(user.GetPublicKey()),
		LastHeard: unixNow(),
		SNR:       float64(packet.GetRxSnr()),
	}
	p.upsertAndPublishNode(ctx, n, firstSighting)
}

func (p *Pipeline) handleChannel(ctx context.Context, ch *meshtastic.Channel) {
	settings := ch.GetSettings()
	if settings == nil {
		return
	}
	now := unixNow()
	err := p.db.UpsertChannel(ctx, store.Channel{
		ID:   int(ch.GetIndex()),
		Name: settings.GetName(),
		PSK:  encodePSK(settings.GetPsk()),
		Role: int(ch.GetRole()),
	}, now)
	if err != nil {
		p.log.Error("ingest: upsert channel failed", zap.Int32("index", ch.GetIndex()), zap.Error(err))
	}
}

func (p *Pipeline) upsertAndPublishNode(ctx context.Context, n store.Node, firstSighting bool) {
	if err := p.db.UpsertNode(ctx, n); err != nil {
		p.log.Error("ingest: upsert node failed", zap.Uint32("node", n.NodeNum), zap.Error(err))
		return
	}
	fresh, err := p.db.GetNode(ctx, n.NodeNum)
	if err != nil || fresh == nil {
		return
	}
	if p.events != nil {
		p.events.PublishNode(*fresh)
	}
	if p.automation != nil {
		p.automation.OnNodeInfo(ctx, *fresh, firstSighting)
	}
}

func nodeFromProto(num uint32, user *meshtastic.User, pos *meshtastic.Position, dm *meshtastic.DeviceMetrics, hopsAway uint32, snr float32, lastHeard uint32, viaMqtt bool) store.Node {
	n := store.Node{
		NodeNum:       num,
		NodeID:        nodeIDHex(num),
		LastHeard:     int64(lastHeard),
		SNR:           float64(snr),
		HopsAway:      int(hopsAway),
		HopsAwayKnown: true,
		ViaMQTT:       viaMqtt,
	}
	if user != nil {
		n.LongName = user.GetLongName()
		n.ShortName = user.GetShortName()
		n.HWModel = user.GetHwModel().String()
		n.Role = user.GetRole().String()
		n.PublicKey = encodePublicKey(user.GetPublicKey())
	}
	if pos != nil {
		n.Lat = float64(pos.GetLatitudeI()) * 1e-7
		n.Lon = float64(pos.GetLongitudeI()) * 1e-7
		n.Alt = float64(pos.GetAltitude())
		n.PrecisionBits = int(pos.GetPrecisionBits())
		n.HasPosition = true
	}
	if dm != nil {
		n.BatteryLevel = int(dm.GetBatteryLevel())
		n.HasBattery = validBatteryLevel(n.BatteryLevel)
		n.Voltage = float64(dm.GetVoltage())
		n.ChannelUtilization = float64(dm.GetChannelUtilization())
		n.AirUtilTx = float64(dm.GetAirUtilTx())
	}
	return n
}

// validBatteryLevel accepts 0-100 plus the mains-powered sentinel 101;
// anything else is dropped on ingest.
func validBatteryLevel(v int) bool {
	return (v >= 0 && v <= 100) || v == 101
}

func encodePSK(psk []byte) string {
	if len(psk) == 0 {
		return "AQ=="
	}
	return b64(psk)
}

func encodePublicKey(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	return b64(key)
}
