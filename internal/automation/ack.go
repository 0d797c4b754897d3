package automation

import (
	"context"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// maybeAutoAck implements the auto-ack rule with a loop guard: a message
// whose text already equals the
// configured reply (raw or substituted for this sender) is never itself
// treated as a trigger, so the echo of our own ack never re-fires it.
func (e *Engine) maybeAutoAck(ctx context.Context, m store.Message) {
	if e.ackRegex == nil {
		return
	}
	if !e.channelEligible(m.Channel) {
		return
	}

	shortName := e.shortNameFor(ctx, m.FromNodeNum)
	fromHex := nodeIDHex(m.FromNodeNum)
	reply := substitute(e.cfg.AckReply, fromHex, shortName)

	if m.Text == e.cfg.AckReply || m.Text == reply {
		return
	}
	if !e.ackRegex.MatchString(m.Text) {
		return
	}

	to := uint32(0xFFFFFFFF)
	if m.Channel < 0 {
		to = m.FromNodeNum
	}
	e.sendText(ctx, to, m.Channel, reply)
}

func (e *Engine) channelEligible(channel int32) bool {
	if channel < 0 {
		return e.cfg.AckAllowDM
	}
	for _, c := range e.cfg.AckChannels {
		if int32(c) == channel {
			return true
		}
	}
	return false
}

func (e *Engine) shortNameFor(ctx context.Context, nodeNum uint32) string {
	n, err := e.db.GetNode(ctx, nodeNum)
	if err != nil || n == nil {
		return ""
	}
	return n.ShortName
}
