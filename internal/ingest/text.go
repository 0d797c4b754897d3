package ingest

import (
	"context"
	"database/sql"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

func (p *Pipeline) handleTextMessage(ctx context.Context, packet *meshtastic.MeshPacket, data *meshtastic.Data) {
	id := messageID(packet.GetFrom(), packet.GetId())
	text := string(data.GetPayload())

	sender, _ := p.db.GetNode(ctx, packet.GetFrom())
	senderKnown := sender != nil
	bridge := isBridgeTraffic(text) || !senderKnown

	m := store.Message{
		ID:          id,
		FromNodeNum: packet.GetFrom(),
		ToNodeNum:   packet.GetTo(),
		Channel:     int32(packet.GetChannel()),
		Portnum:     int32(data.GetPortnum()),
		Text:        text,
		Timestamp:   unixNow(),
		HopStart:    int(packet.GetHopStart()),
		HopLimit:    int(packet.GetHopLimit()),
		ReplyID:     data.GetReplyId(),
		Emoji:       int(data.GetEmoji()),
		IsTapback:   data.GetReplyId() != 0 && data.GetEmoji() != 0,
		Bridge:      bridge,
	}

	var inserted bool
	err := p.writer.Submit(ctx, func(opCtx context.Context, tx *sql.Tx) error {
		var err error
		inserted, err = insertMessageTx(opCtx, tx, m)
		return err
	})
	if err != nil {
		p.log.Error("ingest: insert text message failed", zap.String("id", id), zap.Error(err))
		return
	}
	if !inserted {
		return // duplicate (fromNodeNum, packetId), no-op
	}

	if p.events != nil {
		p.events.PublishMessage(m)
	}

	if !m.IsTapback && p.automation != nil {
		p.automation.OnTextMessage(ctx, m, senderKnown)
	}
}

// insertMessageTx is the transactional twin of (*store.DB).InsertMessage,
// used inside the batched Writer so text-message ingest shares a
// transaction with any other ops in the same batch.
func insertMessageTx(ctx context.Context, tx *sql.Tx, m store.Message) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, from_node_num, to_node_num, channel, portnum, text, timestamp,
			hop_start, hop_limit, reply_id, emoji, acknowledged, ack_failed, bridge, is_tapback
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.FromNodeNum, m.ToNodeNum, m.Channel, m.Portnum, m.Text, m.Timestamp,
		m.HopStart, m.HopLimit, m.ReplyID, m.Emoji, m.Acknowledged, m.AckFailed, m.Bridge, m.IsTapback,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
