package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/eventbus"
	"github.com/meshmonitor/meshmonitor/internal/scheduler"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

type fakeSession struct {
	state session.State
	sends atomic.Int32
}

func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) Send(ctx context.Context, packetID uint32, payload []byte) error {
	f.sends.Add(1)
	return nil
}
func (f *fakeSession) SendNoAck(ctx context.Context, payload []byte) error {
	f.sends.Add(1)
	return nil
}
func (f *fakeSession) Disconnect() error                   { return nil }
func (f *fakeSession) Reconnect(ctx context.Context) error { return nil }
func (f *fakeSession) Reboot(ctx context.Context)          {}

func newTestServer(t *testing.T, sess *fakeSession) (*httptest.Server, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	router := NewRouter(Deps{
		DB:          db,
		Session:     sess,
		Bus:         eventbus.New(),
		Scheduler:   scheduler.New(sess, zap.NewNop()),
		LocalNode:   func() uint32 { return 0x12345678 },
		CORSOrigins: []string{"*"},
		Log:         zap.NewNop(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, db
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func TestChannelListOmitsDisabledRole(t *testing.T) {
	srv, db := newTestServer(t, &fakeSession{state: session.Connected})
	ctx := context.Background()

	for _, c := range []store.Channel{
		{ID: 0, Name: "Primary", Role: 1},
		{ID: 1, Name: "Disabled", Role: 0},
		{ID: 2, Name: "Secondary", Role: 2},
	} {
		if err := db.UpsertChannel(ctx, c, 1000); err != nil {
			t.Fatalf("upsert channel: %v", err)
		}
	}

	var out []map[string]any
	resp := getJSON(t, srv.URL+"/api/channels", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(out) != 2 {
		t.Fatalf("visible channels = %d, want 2", len(out))
	}
	for _, c := range out {
		if c["name"] == "Disabled" {
			t.Fatal("role=0 channel leaked into the list")
		}
	}
}

func TestListMessagesRejectsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{state: session.Connected})
	resp := getJSON(t, srv.URL+"/api/messages?limit=0", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessagePersistsOutboundRow(t *testing.T) {
	sess := &fakeSession{state: session.Connected}
	srv, db := newTestServer(t, sess)

	resp, err := http.Post(srv.URL+"/api/messages/send", "application/json",
		bytes.NewReader([]byte(`{"text":"hi","channel":0}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body struct {
		ID       string `json:"id"`
		PacketID uint32 `json:"packetId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantID := fmt.Sprintf("%d_%d", 0x12345678, body.PacketID)
	if body.ID != wantID {
		t.Fatalf("id = %q, want %q", body.ID, wantID)
	}

	m, err := db.FindMessage(context.Background(), body.ID)
	if err != nil || m == nil {
		t.Fatalf("outbound message not persisted: err=%v m=%v", err, m)
	}
	if m.Acknowledged {
		t.Fatal("fresh outbound message must start unacknowledged")
	}
}

func TestConnectionReflectsSessionState(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{state: session.UserDisconnected})
	var out map[string]any
	getJSON(t, srv.URL+"/api/connection", &out)
	if out["connected"] != false || out["userDisconnected"] != true {
		t.Fatalf("connection = %v", out)
	}
}

func TestTracerouteRequiresConnection(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{state: session.Disconnected})
	resp := postJSON(t, srv.URL+"/api/traceroute", map[string]string{"destination": "!a2e175b8"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{state: session.Connected})

	resp := postJSON(t, srv.URL+"/api/settings", map[string]string{"retention.messages": "720h"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post status = %d", resp.StatusCode)
	}

	var out map[string]string
	getJSON(t, srv.URL+"/api/settings", &out)
	if out["retention.messages"] != "720h" {
		t.Fatalf("setting = %q, want 720h", out["retention.messages"])
	}
}

func TestPollSnapshotShape(t *testing.T) {
	srv, db := newTestServer(t, &fakeSession{state: session.Connected})
	ctx := context.Background()

	if err := db.UpsertNode(ctx, store.Node{NodeNum: 0x22222222, NodeID: "!22222222", LongName: "N1"}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}

	var out map[string]any
	resp := getJSON(t, srv.URL+"/api/poll", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, key := range []string{"nodes", "messages", "reactions", "channels", "sets", "config", "connection"} {
		if _, ok := out[key]; !ok {
			t.Fatalf("poll snapshot missing %q", key)
		}
	}
}

func TestParseNodeIDRoundTrip(t *testing.T) {
	n, err := parseNodeID("!a2e175b8")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 0xa2e175b8 {
		t.Fatalf("n = %#x", n)
	}
	if got := nodeIDHex(n); got != "!a2e175b8" {
		t.Fatalf("hex = %q", got)
	}
}

func TestSetChannelValidation(t *testing.T) {
	srv, db := newTestServer(t, &fakeSession{state: session.Disconnected})

	resp := postJSON(t, srv.URL+"/api/channels/9", map[string]any{"name": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/channels/2", map[string]any{"name": "x", "role": 7})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/channels/2", map[string]any{"name": "Ops", "role": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	c, err := db.GetChannel(context.Background(), 2)
	if err != nil || c == nil {
		t.Fatalf("channel not stored: err=%v c=%v", err, c)
	}
	if c.Name != "Ops" || c.Role != 2 || c.PSK != "AQ==" {
		t.Fatalf("stored channel = %+v", c)
	}
}

func TestRebootRequiresConnection(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{state: session.Disconnected})
	resp := postJSON(t, srv.URL+"/api/device/reboot", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestMessageReactionsEndpointAndFeedFilter(t *testing.T) {
	srv, db := newTestServer(t, &fakeSession{state: session.Connected})
	ctx := context.Background()

	_, err := db.InsertMessage(ctx, store.Message{
		ID: "52_1", FromNodeNum: 52, ToNodeNum: 0xFFFFFFFF, Channel: 0,
		Portnum: 1, Text: "hello", Timestamp: 100,
	})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	_, err = db.InsertMessage(ctx, store.Message{
		ID: "52_2", FromNodeNum: 52, ToNodeNum: 0xFFFFFFFF, Channel: 0,
		Portnum: 1, Text: "👍", Timestamp: 101, ReplyID: 1, Emoji: 1, IsTapback: true,
	})
	if err != nil {
		t.Fatalf("insert tapback: %v", err)
	}

	var feed []map[string]any
	getJSON(t, srv.URL+"/api/messages?limit=10", &feed)
	if len(feed) != 1 {
		t.Fatalf("feed length = %d, want 1 (tapback must not appear)", len(feed))
	}

	var reactions []map[string]any
	resp := getJSON(t, srv.URL+"/api/messages/52_1/reactions", &reactions)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(reactions) != 1 || reactions[0]["emoji"] != "👍" {
		t.Fatalf("reactions = %v, want one 👍", reactions)
	}

	resp = getJSON(t, srv.URL+"/api/messages/not-an-id/reactions", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", resp.StatusCode)
	}
}
