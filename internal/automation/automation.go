// Package automation implements the event-driven automation hooks:
// regex-matched auto-ack and first-contact auto-welcome. Scheduled
// auto-announce is sent by internal/scheduler, not here. It satisfies
// internal/ingest.AutomationHook so the Ingest Pipeline can call it without
// importing it directly.
package automation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

// Sender is the slice of *session.Session automation depends on.
type Sender interface {
	Send(ctx context.Context, packetID uint32, payload []byte) error
}

// Engine holds compiled automation config and dispatches OnTextMessage /
// OnNodeInfo calls from the Ingest Pipeline.
type Engine struct {
	cfg       config.AutomationConfig
	localNode atomic.Uint32
	sender    Sender
	db        *store.DB
	log       *zap.Logger

	ackRegex *regexp.Regexp
}

// New compiles cfg.AckRegex (if auto-ack is configured) and returns a ready
// Engine. An empty AckRegex disables auto-ack without it being an error.
// localNode may be 0 at construction; the gateway updates it via
// SetLocalNode once the session learns it from MyInfo.
func New(cfg config.AutomationConfig, localNode uint32, sender Sender, db *store.DB, log *zap.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, sender: sender, db: db, log: log}
	e.localNode.Store(localNode)
	if cfg.AckEnabled && cfg.AckRegex != "" {
		re, err := regexp.Compile(cfg.AckRegex)
		if err != nil {
			return nil, fmt.Errorf("automation: compile ack_regex %q: %w", cfg.AckRegex, err)
		}
		e.ackRegex = re
	}
	return e, nil
}

// SetLocalNode records the local node number once the Device Session has
// learned it, so the loop guards below can tell own traffic apart.
func (e *Engine) SetLocalNode(n uint32) {
	e.localNode.Store(n)
}

// OnTextMessage implements ingest.AutomationHook.
func (e *Engine) OnTextMessage(ctx context.Context, m store.Message, senderKnown bool) {
	if m.FromNodeNum == e.localNode.Load() {
		return
	}
	e.maybeAutoAck(ctx, m)
	if e.cfg.WelcomeEnabled && !senderKnown {
		e.maybeWelcomeUnknownSender(ctx, m.FromNodeNum)
	}
}

// OnNodeInfo implements ingest.AutomationHook.
func (e *Engine) OnNodeInfo(ctx context.Context, n store.Node, firstSighting bool) {
	if !e.cfg.WelcomeEnabled || !firstSighting || n.NodeNum == e.localNode.Load() {
		return
	}
	e.maybeWelcomeNode(ctx, n)
}

func nodeIDHex(n uint32) string {
	return fmt.Sprintf("!%08x", n)
}

func substitute(template, fromHex, shortName string) string {
	r := strings.NewReplacer("{from}", fromHex, "{shortName}", shortName)
	return r.Replace(template)
}

func unixNow() int64 {
	return time.Now().Unix()
}

// sendText builds and sends a TEXT_MESSAGE_APP packet via the Sender,
// mirroring how a user-issued send is built (same meshproto builder, a
// fresh session.NewOutboundPacketID), so automation-originated sends are
// indistinguishable on the wire from user-originated ones.
func (e *Engine) sendText(ctx context.Context, to uint32, channel int32, text string) {
	ch := channel
	if ch < 0 {
		ch = 0
	}
	packetID := session.NewOutboundPacketID()
	msg := meshproto.TextMessage(packetID, to, uint32(ch), text, 0, 0, false)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		e.log.Error("automation: encode outbound text failed", zap.Error(err))
		return
	}
	if err := e.sender.Send(ctx, packetID, raw); err != nil {
		e.log.Warn("automation: send failed", zap.Uint32("to", to), zap.Error(err))
	}
}
