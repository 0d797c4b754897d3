// Package meshproto implements the Meshtastic wire codec: protobuf
// encode/decode of FromRadio/ToRadio frames and channel-payload decryption.
package meshproto

import (
	"fmt"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

// Codec decodes/encodes Meshtastic protobuf frames. It holds no state beyond
// marshal options, and is safe for concurrent use.
type Codec struct {
	opts proto.MarshalOptions
}

// New returns a ready Codec.
func New() *Codec {
	return &Codec{opts: proto.MarshalOptions{Deterministic: true}}
}

// DecodeFromRadio parses a raw (already de-framed) FromRadio payload.
func (c *Codec) DecodeFromRadio(payload []byte) (*meshtastic.FromRadio, error) {
	var fr meshtastic.FromRadio
	if err := proto.Unmarshal(payload, &fr); err != nil {
		return nil, fmt.Errorf("meshproto: decode FromRadio: %w", err)
	}
	return &fr, nil
}

// EncodeToRadio serializes a ToRadio message to bytes ready for framing.
func (c *Codec) EncodeToRadio(msg *meshtastic.ToRadio) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("meshproto: cannot encode nil ToRadio")
	}
	out, err := c.opts.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("meshproto: encode ToRadio: %w", err)
	}
	return out, nil
}

// WantConfig builds the ToRadio want_config_id handshake message.
func WantConfig(nonce uint32) *meshtastic.ToRadio {
	return &meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_WantConfigId{WantConfigId: nonce},
	}
}

// Disconnect builds the ToRadio disconnect message.
func Disconnect() *meshtastic.ToRadio {
	return &meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Disconnect{Disconnect: true},
	}
}

// TextMessage builds a MeshPacket carrying a TEXT_MESSAGE_APP payload.
// emoji is non-zero only when this send is itself a tapback reaction to
// replyID.
func TextMessage(packetID, to uint32, channel uint32, text string, replyID uint32, emoji int32, wantAck bool) *meshtastic.ToRadio {
	data := &meshtastic.Data{
		Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
		Payload: []byte(text),
	}
	if replyID != 0 {
		data.ReplyId = replyID
	}
	if emoji != 0 {
		data.Emoji = uint32(emoji)
	}
	return &meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Packet{
			Packet: &meshtastic.MeshPacket{
				Id:      packetID,
				To:      to,
				Channel: channel,
				WantAck: wantAck,
				PayloadVariant: &meshtastic.MeshPacket_Decoded{
					Decoded: data,
				},
			},
		},
	}
}

// TracerouteRequest builds a MeshPacket requesting a traceroute to `to`.
func TracerouteRequest(packetID, to uint32) *meshtastic.ToRadio {
	return &meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Packet{
			Packet: &meshtastic.MeshPacket{
				Id:      packetID,
				To:      to,
				WantAck: true,
				PayloadVariant: &meshtastic.MeshPacket_Decoded{
					Decoded: &meshtastic.Data{
						Portnum:      meshtastic.PortNum_TRACEROUTE_APP,
						WantResponse: true,
					},
				},
			},
		},
	}
}

// SetFavorite builds an AdminMessage packet toggling a node's favorite flag.
func SetFavorite(packetID, adminTarget, nodeNum uint32, favorite bool) *meshtastic.ToRadio {
	var admin meshtastic.AdminMessage
	if favorite {
		admin.PayloadVariant = &meshtastic.AdminMessage_SetFavoriteNode{SetFavoriteNode: nodeNum}
	} else {
		admin.PayloadVariant = &meshtastic.AdminMessage_RemoveFavoriteNode{RemoveFavoriteNode: nodeNum}
	}
	return adminToRadio(packetID, adminTarget, &admin)
}

// SetOwner builds an AdminMessage packet setting the local node's identity.
func SetOwner(packetID, adminTarget uint32, longName, shortName string) *meshtastic.ToRadio {
	admin := &meshtastic.AdminMessage{
		PayloadVariant: &meshtastic.AdminMessage_SetOwner{
			SetOwner: &meshtastic.User{LongName: longName, ShortName: shortName},
		},
	}
	return adminToRadio(packetID, adminTarget, admin)
}

// SetChannel builds the admin message writing one channel slot's settings
// to the radio.
func SetChannel(packetID, adminTarget uint32, index int32, name string, psk []byte, role int32) *meshtastic.ToRadio {
	admin := &meshtastic.AdminMessage{
		PayloadVariant: &meshtastic.AdminMessage_SetChannel{
			SetChannel: &meshtastic.Channel{
				Index: index,
				Role:  meshtastic.Channel_Role(role),
				Settings: &meshtastic.ChannelSettings{
					Name: name,
					Psk:  psk,
				},
			},
		},
	}
	return adminToRadio(packetID, adminTarget, admin)
}

// RequestNodeDB re-issues the want_config handshake, which makes the radio
// stream its full node table again. The firmware has no dedicated "dump
// node db" admin request; a fresh config dump is the refresh mechanism.
func RequestNodeDB(nonce uint32) *meshtastic.ToRadio {
	return WantConfig(nonce)
}

// Reboot builds the admin message scheduling a device reboot in `seconds`.
func Reboot(packetID, adminTarget uint32, seconds int32) *meshtastic.ToRadio {
	admin := &meshtastic.AdminMessage{
		PayloadVariant: &meshtastic.AdminMessage_RebootSeconds{RebootSeconds: seconds},
	}
	return adminToRadio(packetID, adminTarget, admin)
}

func adminToRadio(packetID, adminTarget uint32, admin *meshtastic.AdminMessage) *meshtastic.ToRadio {
	payload, err := proto.Marshal(admin)
	if err != nil {
		// AdminMessage is always marshalable for the variants we construct.
		payload = nil
	}
	return &meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Packet{
			Packet: &meshtastic.MeshPacket{
				Id:      packetID,
				To:      adminTarget,
				WantAck: true,
				PayloadVariant: &meshtastic.MeshPacket_Decoded{
					Decoded: &meshtastic.Data{
						Portnum:      meshtastic.PortNum_ADMIN_APP,
						Payload:      payload,
						WantResponse: true,
					},
				},
			},
		},
	}
}
