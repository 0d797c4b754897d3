package meshproto

import (
	"bytes"
	"testing"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := NewStreamFramer(&buf, &buf)

	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	require.NoError(t, f.WriteFrame(payload))

	got, err := f.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameResyncSkipsGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0xff, 0x42}) // stray bytes before the header
	w := NewStreamFramer(&bytes.Buffer{}, &buf)
	require.NoError(t, w.WriteFrame([]byte("hello")))

	r := NewStreamFramer(&buf, &bytes.Buffer{})
	got, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	f := NewStreamFramer(&bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, f.WriteFrame(make([]byte, MaxPacketSize+1)))
}

func TestResolveChannelKeyDefaultSentinel(t *testing.T) {
	key, err := ResolveChannelKey("AQ==")
	require.NoError(t, err)
	require.Equal(t, DefaultKey, key)

	_, err = ResolveChannelKey("not base64!!!")
	require.Error(t, err)
}

func TestDecryptPacketRoundTrip(t *testing.T) {
	data := &meshtastic.Data{
		Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
		Payload: []byte("secret"),
	}
	plaintext, err := proto.Marshal(data)
	require.NoError(t, err)

	// CTR is symmetric, so encrypting is one decryptCTR call.
	ciphertext, err := decryptCTR(plaintext, DefaultKey, 0xAAAA, 0x12345678)
	require.NoError(t, err)

	packet := &meshtastic.MeshPacket{
		Id:             0xAAAA,
		From:           0x12345678,
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: ciphertext},
	}
	got, err := DecryptPacket(packet, DefaultKey)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), got.GetPayload())
	require.Equal(t, meshtastic.PortNum_TEXT_MESSAGE_APP, got.GetPortnum())
}

func TestTextMessageBuilder(t *testing.T) {
	msg := TextMessage(7, 0xFFFFFFFF, 0, "hi", 0, 0, true)
	packet := msg.GetPacket()
	require.NotNil(t, packet)
	require.EqualValues(t, 7, packet.GetId())
	require.True(t, packet.GetWantAck())
	require.Equal(t, "hi", string(packet.GetDecoded().GetPayload()))
	require.Equal(t, meshtastic.PortNum_TEXT_MESSAGE_APP, packet.GetDecoded().GetPortnum())
}
