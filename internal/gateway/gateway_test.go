package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/store"
	"github.com/meshmonitor/meshmonitor/internal/transport"
)

func TestBuildTransportSelectsByConfig(t *testing.T) {
	log := zap.NewNop()

	tr, err := buildTransport(config.RadioConfig{Transport: "tcp", NodeIP: "192.168.1.5"}, log)
	require.NoError(t, err)
	require.IsType(t, &transport.TCPTransport{}, tr)

	tr, err = buildTransport(config.RadioConfig{Transport: "http", NodeIP: "192.168.1.5"}, log)
	require.NoError(t, err)
	require.IsType(t, &transport.HTTPTransport{}, tr)

	tr, err = buildTransport(config.RadioConfig{Transport: "serial", SerialDev: "/dev/ttyUSB0", BaudRate: 115200}, log)
	require.NoError(t, err)
	require.IsType(t, &transport.SerialTransport{}, tr)

	_, err = buildTransport(config.RadioConfig{Transport: "carrier-pigeon"}, log)
	require.Error(t, err)
}

func TestSeedRetentionSettingsDoesNotOverwrite(t *testing.T) {
	db, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	// An operator-tuned value present before boot must survive reseeding.
	require.NoError(t, db.SetSetting(ctx, "retention.messages", "720h"))

	r := config.RetentionConfig{
		Telemetry:    30 * 24 * time.Hour,
		Messages:     90 * 24 * time.Hour,
		PositionHist: 7 * 24 * time.Hour,
		NeighborInfo: 24 * time.Hour,
	}
	require.NoError(t, seedRetentionSettings(ctx, db, r))

	v, ok, err := db.GetSetting(ctx, "retention.messages")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "720h", v)

	v, ok, err = db.GetSetting(ctx, "retention.neighbor_info")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "24h0m0s", v)
}
