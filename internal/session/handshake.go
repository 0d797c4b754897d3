package session

import meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"

// configCompleteID extracts a FromRadio's config_complete_id field, the
// handshake terminator the session waits for while Configuring.
func configCompleteID(fr *meshtastic.FromRadio) (uint32, bool) {
	v, ok := fr.GetPayloadVariant().(*meshtastic.FromRadio_ConfigCompleteId)
	if !ok {
		return 0, false
	}
	return v.ConfigCompleteId, true
}
