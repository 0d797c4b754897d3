package automation

import (
	"context"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// maybeWelcomeNode handles the NODEINFO_APP trigger: the node row already
// exists (the pipeline upserts it before calling OnNodeInfo). The caller's
// copy may predate an earlier welcome, so the stored row's WelcomedAt is
// checked as well; a node is welcomed at most once.
func (e *Engine) maybeWelcomeNode(ctx context.Context, n store.Node) {
	if n.WelcomedAt != 0 {
		return
	}
	if cur, err := e.db.GetNode(ctx, n.NodeNum); err == nil && cur != nil && cur.WelcomedAt != 0 {
		return
	}
	if e.cfg.WaitForName && n.LongName == "" {
		return
	}
	e.welcome(ctx, n.NodeNum, n.ShortName)
}

// maybeWelcomeUnknownSender handles the TEXT_MESSAGE_APP trigger for a
// sender with no Node row at all yet. If waitForName is set we cannot
// satisfy it without a name, so welcome is deferred to the eventual
// NODEINFO_APP sighting instead.
func (e *Engine) maybeWelcomeUnknownSender(ctx context.Context, fromNodeNum uint32) {
	if e.cfg.WaitForName {
		return
	}
	n, err := e.db.GetNode(ctx, fromNodeNum)
	if err == nil && n != nil {
		e.maybeWelcomeNode(ctx, *n)
		return
	}
	e.welcome(ctx, fromNodeNum, "")
}

func (e *Engine) welcome(ctx context.Context, nodeNum uint32, shortName string) {
	fromHex := nodeIDHex(nodeNum)
	text := substitute(e.cfg.WelcomeText, fromHex, shortName)
	e.sendText(ctx, nodeNum, -1, text)

	// A sender with no prior NODEINFO_APP has no Node row yet; UpsertNode's
	// merge semantics make this safe to call unconditionally; it never
	// clobbers fields a later NODEINFO_APP fills in.
	if err := e.db.UpsertNode(ctx, store.Node{NodeNum: nodeNum, NodeID: fromHex}); err != nil {
		e.log.Warn("automation: stub node upsert failed", zap.Uint32("node", nodeNum), zap.Error(err))
	}
	if err := e.db.MarkWelcomed(ctx, nodeNum, unixNow()); err != nil {
		e.log.Warn("automation: mark welcomed failed", zap.Uint32("node", nodeNum), zap.Error(err))
	}
}
