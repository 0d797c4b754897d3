package automation

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

type fakeSender struct {
	sends atomic.Int32
}

func (f *fakeSender) Send(ctx context.Context, packetID uint32, payload []byte) error {
	f.sends.Add(1)
	return nil
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAutoAckEchoLoopSafety(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{
		AckEnabled:  true,
		AckRegex:    "^test$",
		AckReply:    "ack: {from}",
		AckChannels: []int{0},
	}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	inbound := store.Message{
		ID:          "1_1",
		FromNodeNum: 0x22222222,
		Channel:     0,
		Text:        "test",
	}
	e.OnTextMessage(context.Background(), inbound, true)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends after trigger = %d, want 1", got)
	}

	echo := store.Message{
		ID:          "2_2",
		FromNodeNum: 0x22222222,
		Channel:     0,
		Text:        "ack: !22222222",
	}
	e.OnTextMessage(context.Background(), echo, true)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends after echoed ack = %d, want still 1 (loop guard failed)", got)
	}
}

func TestAutoAckIgnoresOwnNode(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{AckEnabled: true, AckRegex: ".*", AckReply: "ack", AckChannels: []int{0}}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.OnTextMessage(context.Background(), store.Message{FromNodeNum: 0x11111111, Channel: 0, Text: "hi"}, true)
	if got := sender.sends.Load(); got != 0 {
		t.Fatalf("sends = %d, want 0 for own-node message", got)
	}
}

func TestAutoAckChannelFilter(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{AckEnabled: true, AckRegex: ".*", AckReply: "ack", AckChannels: []int{0}}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.OnTextMessage(context.Background(), store.Message{FromNodeNum: 0x22222222, Channel: 3, Text: "hi"}, true)
	if got := sender.sends.Load(); got != 0 {
		t.Fatalf("sends = %d, want 0 for non-configured channel", got)
	}
}

func TestAutoWelcomeOnFirstNodeInfo(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{WelcomeEnabled: true, WelcomeText: "hi {from}"}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := store.Node{NodeNum: 0x22222222, NodeID: "!22222222", LongName: "Node Two"}
	if err := db.UpsertNode(context.Background(), n); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	e.OnNodeInfo(context.Background(), n, true)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}

	e.OnNodeInfo(context.Background(), n, true)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends after repeated firstSighting = %d, want still 1", got)
	}
}

func TestAutoWelcomeWaitsForName(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{WelcomeEnabled: true, WelcomeText: "hi {from}", WaitForName: true}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := store.Node{NodeNum: 0x22222222, NodeID: "!22222222"}
	if err := db.UpsertNode(context.Background(), n); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	e.OnNodeInfo(context.Background(), n, true)
	if got := sender.sends.Load(); got != 0 {
		t.Fatalf("sends = %d, want 0 while longName is empty", got)
	}
}

func TestAutoWelcomeFromUnknownTextSender(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	cfg := config.AutomationConfig{WelcomeEnabled: true, WelcomeText: "hi {from}"}
	e, err := New(cfg, 0x11111111, sender, db, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.OnTextMessage(context.Background(), store.Message{FromNodeNum: 0x33333333, Text: "hello"}, false)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	n, err := db.GetNode(context.Background(), 0x33333333)
	if err != nil || n == nil {
		t.Fatalf("expected stub node row to be created, err=%v node=%v", err, n)
	}
	if n.WelcomedAt == 0 {
		t.Fatal("expected welcomedAt to be set")
	}
}
