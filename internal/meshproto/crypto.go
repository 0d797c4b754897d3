package meshproto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

// DefaultKey is Meshtastic's well-known default channel AES-128 key, used
// whenever a channel's PSK is the single-byte sentinel 0x01 (base64 "AQ==").
var DefaultKey = []byte{
	0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59,
	0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01,
}

// ResolveChannelKey decodes a channel's base64 PSK, expanding the single-byte
// "default key" sentinel (0x01) to DefaultKey.
func ResolveChannelKey(pskB64 string) ([]byte, error) {
	if pskB64 == "" {
		return nil, fmt.Errorf("meshproto: empty psk")
	}
	raw, err := base64.StdEncoding.DecodeString(pskB64)
	if err != nil {
		return nil, fmt.Errorf("meshproto: decode psk: %w", err)
	}
	if len(raw) == 1 && raw[0] == 0x01 {
		return DefaultKey, nil
	}
	return raw, nil
}

// DecryptPacket returns the packet's Data, decrypting it first if the packet
// arrived as an Encrypted payload variant. Decoded (already-plaintext)
// packets are returned as-is. On decrypt failure the caller should keep the
// raw packet as an opaque/undecryptable record rather than discard it;
// DecryptPacket returns the error for that purpose and never panics on
// malformed input.
func DecryptPacket(packet *meshtastic.MeshPacket, channelKey []byte) (*meshtastic.Data, error) {
	switch v := packet.GetPayloadVariant().(type) {
	case *meshtastic.MeshPacket_Decoded:
		return v.Decoded, nil
	case *meshtastic.MeshPacket_Encrypted:
		plaintext, err := decryptCTR(v.Encrypted, channelKey, packet.GetId(), packet.GetFrom())
		if err != nil {
			return nil, fmt.Errorf("meshproto: decrypt packet %d: %w", packet.GetId(), err)
		}
		var data meshtastic.Data
		if err := proto.Unmarshal(plaintext, &data); err != nil {
			return nil, fmt.Errorf("meshproto: unmarshal decrypted packet %d: %w", packet.GetId(), err)
		}
		return &data, nil
	default:
		return nil, fmt.Errorf("meshproto: packet %d has no payload variant", packet.GetId())
	}
}

// decryptCTR implements Meshtastic's channel-payload scheme: AES-CTR with a
// 16-byte nonce built from the packet id (8 bytes, little-endian) followed by
// the sending node number (8 bytes, little-endian, high 4 bytes zero).
func decryptCTR(ciphertext, key []byte, packetID, fromNode uint32) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}

	nonce := make([]byte, 16)
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(packetID))
	binary.LittleEndian.PutUint64(nonce[8:16], uint64(fromNode))

	stream := cipher.NewCTR(block, nonce)
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
