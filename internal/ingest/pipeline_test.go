package ingest

import (
	"context"
	"sync"
	"testing"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

type fakeAcks struct {
	mu       sync.Mutex
	resolved []uint32
}

func (f *fakeAcks) ResolveAck(packetID uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, packetID)
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.DB, *fakeAcks, context.CancelFunc) {
	t.Helper()
	db, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	writer := store.NewWriter(db, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go writer.Run(ctx)

	acks := &fakeAcks{}
	p := New(db, writer, zap.NewNop(), 0, func(int32) []byte { return meshproto.DefaultKey }, acks, nil, nil)
	t.Cleanup(func() {
		cancel()
		db.Close()
	})
	return p, db, acks, cancel
}

func frameBytes(t *testing.T, fr *meshtastic.FromRadio) []byte {
	t.Helper()
	raw, err := proto.Marshal(fr)
	require.NoError(t, err)
	return raw
}

func packetFrame(t *testing.T, packet *meshtastic.MeshPacket) []byte {
	t.Helper()
	return frameBytes(t, &meshtastic.FromRadio{
		PayloadVariant: &meshtastic.FromRadio_Packet{Packet: packet},
	})
}

func textPacket(packetID, from, to uint32, channel uint32, text string, replyID uint32, emoji uint32) *meshtastic.MeshPacket {
	data := &meshtastic.Data{
		Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
		Payload: []byte(text),
	}
	if replyID != 0 {
		data.ReplyId = replyID
	}
	if emoji != 0 {
		data.Emoji = emoji
	}
	return &meshtastic.MeshPacket{
		Id:             packetID,
		From:           from,
		To:             to,
		Channel:        channel,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{Decoded: data},
	}
}

func TestFirstMessageRoundTrip(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)
	ctx := context.Background()

	nodeInfo := frameBytes(t, &meshtastic.FromRadio{
		PayloadVariant: &meshtastic.FromRadio_NodeInfo{
			NodeInfo: &meshtastic.NodeInfo{
				Num:  0x12345678,
				User: &meshtastic.User{LongName: "N1", ShortName: "N1X"},
			},
		},
	})
	p.HandleFrame(ctx, nodeInfo)

	n, err := db.GetNode(ctx, 0x12345678)
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "N1", n.LongName)
	require.Equal(t, "!12345678", n.NodeID)

	p.HandleFrame(ctx, packetFrame(t, textPacket(0xAAAA, 0x12345678, 0xFFFFFFFF, 0, "hi", 0, 0)))

	m, err := db.FindMessage(ctx, "305419896_43690")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "hi", m.Text)
	require.Equal(t, int32(0), m.Channel)
	require.False(t, m.Acknowledged)

	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestRoutingAckCorrelation(t *testing.T) {
	p, db, acks, _ := newTestPipeline(t)
	ctx := context.Background()

	// Outbound message persisted by the send path: local node 0x11 sent
	// packet 0xAAAA.
	_, err := db.InsertMessage(ctx, store.Message{
		ID:          "17_43690",
		FromNodeNum: 0x11,
		ToNodeNum:   0xFFFFFFFF,
		Channel:     0,
		Portnum:     1,
		Text:        "hi",
		Timestamp:   1000,
	})
	require.NoError(t, err)

	routing, err := proto.Marshal(&meshtastic.Routing{
		Variant: &meshtastic.Routing_ErrorReason{ErrorReason: meshtastic.Routing_NONE},
	})
	require.NoError(t, err)

	p.HandleFrame(ctx, packetFrame(t, &meshtastic.MeshPacket{
		Id:   0xBBBB,
		From: 0x12345678,
		To:   0x11,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{Decoded: &meshtastic.Data{
			Portnum:   meshtastic.PortNum_ROUTING_APP,
			Payload:   routing,
			RequestId: 0xAAAA,
		}},
	}))

	m, err := db.FindMessage(ctx, "17_43690")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.True(t, m.Acknowledged, "ROUTING_APP with requestId must ack the originating message")
	require.Equal(t, []uint32{0xAAAA}, acks.resolved)
}

func TestTapbackHiddenFromFeedAndIdempotent(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)
	ctx := context.Background()

	p.HandleFrame(ctx, packetFrame(t, textPacket(1, 0x22, 0xFFFFFFFF, 0, "hello", 0, 0)))
	p.HandleFrame(ctx, packetFrame(t, textPacket(2, 0x22, 0xFFFFFFFF, 0, "👍", 1, 1)))

	// The feed shows only the original message; the tapback renders under
	// it via the reactions lookup.
	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Text)

	reactions, err := db.ReactionsForPacketIDs(ctx, []uint32{1})
	require.NoError(t, err)
	require.Len(t, reactions[1], 1)
	require.Equal(t, "👍", reactions[1][0].Text)

	// Re-ingesting the tapback is a no-op.
	p.HandleFrame(ctx, packetFrame(t, textPacket(2, 0x22, 0xFFFFFFFF, 0, "👍", 1, 1)))
	reactions, err = db.ReactionsForPacketIDs(ctx, []uint32{1})
	require.NoError(t, err)
	require.Len(t, reactions[1], 1)
}

func TestMessageReingestIsIdempotent(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)
	ctx := context.Background()

	frame := packetFrame(t, textPacket(7, 0x33, 0xFFFFFFFF, 1, "once", 0, 0))
	for i := 0; i < 3; i++ {
		p.HandleFrame(ctx, frame)
	}

	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestEncryptedPacketWithWrongKeyIsKeptOpaque(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)
	ctx := context.Background()

	// Garbage ciphertext: decrypt yields an unparseable Data, so the packet
	// must be logged as opaque, never crash, and write no message row.
	p.HandleFrame(ctx, packetFrame(t, &meshtastic.MeshPacket{
		Id:             9,
		From:           0x44,
		To:             0xFFFFFFFF,
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: []byte{0xde, 0xad, 0xbe, 0xef, 0x01}},
	}))

	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 0)
}
