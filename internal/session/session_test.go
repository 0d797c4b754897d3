package session

import (
	"context"
	"testing"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/meshmonitor/meshmonitor/internal/transport"
)

type fakeTransport struct {
	frames chan []byte
	sent   chan []byte
	state  transport.ConnectionState
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 8), sent: make(chan []byte, 8), state: transport.Connected}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect() error                 { return nil }
func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	f.sent <- payload
	return nil
}
func (f *fakeTransport) Frames() <-chan []byte            { return f.frames }
func (f *fakeTransport) State() transport.ConnectionState { return f.state }

func TestHandshakeReachesConnected(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, zap.NewNop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	// The radio sends nothing until want_config arrives, so the session
	// must send it purely off the transport link coming up.
	var wantConfigSent []byte
	select {
	case wantConfigSent = <-ft.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("want_config was never sent")
	}

	var tr meshtastic.ToRadio
	require.NoError(t, proto.Unmarshal(wantConfigSent, &tr))
	nonce := tr.GetWantConfigId()
	require.NotZero(t, nonce)
	require.Equal(t, Configuring, s.State())

	// Echo config_complete_id with the matching nonce, as the radio does at
	// the end of its config dump.
	done, err := proto.Marshal(&meshtastic.FromRadio{
		PayloadVariant: &meshtastic.FromRadio_ConfigCompleteId{ConfigCompleteId: nonce},
	})
	require.NoError(t, err)
	ft.frames <- done

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 10*time.Millisecond)
}

func TestNoHandshakeWhileLinkDown(t *testing.T) {
	ft := newFakeTransport()
	ft.state = transport.Connecting
	s := New(ft, zap.NewNop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	select {
	case <-ft.sent:
		t.Fatal("want_config sent before the transport link was up")
	case <-time.After(600 * time.Millisecond):
	}
	require.Equal(t, Connecting, s.State())
}

func TestNewPacketIDIsUnique(t *testing.T) {
	a, b := NewPacketID(), NewPacketID()
	require.NotEqual(t, a, b)
}
