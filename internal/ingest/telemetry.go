package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// handleTelemetry appends one sample per metric in the sub-kind variant.
func (p *Pipeline) handleTelemetry(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	var t meshtastic.Telemetry
	if err := unmarshalInto(data.GetPayload(), &t); err != nil {
		p.log.Warn("ingest: undecodable Telemetry payload", zap.Error(err))
		return
	}

	nodeNum := packet.GetFrom()
	ts := int64(t.GetTime())
	if ts == 0 {
		ts = unixNow()
	}

	var samples []store.TelemetrySample
	switch v := t.GetVariant().(type) {
	case *meshtastic.Telemetry_DeviceMetrics:
		dm := v.DeviceMetrics
		samples = append(samples,
			sample(nodeNum, "device", "batteryLevel", float64(dm.GetBatteryLevel()), ts),
			sample(nodeNum, "device", "voltage", float64(dm.GetVoltage()), ts),
			sample(nodeNum, "device", "channelUtilization", float64(dm.GetChannelUtilization()), ts),
			sample(nodeNum, "device", "airUtilTx", float64(dm.GetAirUtilTx()), ts),
		)
	case *meshtastic.Telemetry_EnvironmentMetrics:
		em := v.EnvironmentMetrics
		samples = append(samples,
			sample(nodeNum, "environment", "temperature", float64(em.GetTemperature()), ts),
			sample(nodeNum, "environment", "relativeHumidity", float64(em.GetRelativeHumidity()), ts),
			sample(nodeNum, "environment", "barometricPressure", float64(em.GetBarometricPressure()), ts),
		)
	case *meshtastic.Telemetry_PowerMetrics:
		pm := v.PowerMetrics
		samples = append(samples,
			sample(nodeNum, "power", "ch1Voltage", float64(pm.GetCh1Voltage()), ts),
			sample(nodeNum, "power", "ch1Current", float64(pm.GetCh1Current()), ts),
		)
	case *meshtastic.Telemetry_LocalStats:
		ls := v.LocalStats
		samples = append(samples,
			sample(nodeNum, "local-stats", "numPacketsTx", float64(ls.GetNumPacketsTx()), ts),
			sample(nodeNum, "local-stats", "numPacketsRx", float64(ls.GetNumPacketsRx()), ts),
		)
	default:
		return
	}

	for _, s := range samples {
		if err := p.db.InsertTelemetry(ctx, s); err != nil {
			p.log.Error("ingest: insert telemetry failed", zap.Uint32("node", nodeNum), zap.Error(err))
			continue
		}
		if p.events != nil {
			p.events.PublishTelemetry(s)
		}
	}
}

func sample(nodeNum uint32, kind, metric string, value float64, ts int64) store.TelemetrySample {
	return store.TelemetrySample{NodeNum: nodeNum, Kind: kind, Metric: metric, Value: value, Timestamp: ts}
}
