package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(migrations), v)
}

func TestUpsertNodePreservesUnsetFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertNode(ctx, Node{
		NodeNum: 42, NodeID: "!0000002a", LongName: "Alice", LastHeard: 100,
	}))
	require.NoError(t, db.UpsertNode(ctx, Node{
		NodeNum: 42, NodeID: "!0000002a", LastHeard: 200,
	}))

	n, err := db.GetNode(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "Alice", n.LongName, "long name should survive an update with no name")
	require.EqualValues(t, 200, n.LastHeard)
}

func TestInsertMessageDedup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msg := Message{ID: "42_1", FromNodeNum: 42, ToNodeNum: 0xFFFFFFFF, Channel: 0, Portnum: 1, Text: "hi", Timestamp: 1}
	inserted, err := db.InsertMessage(ctx, msg)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = db.InsertMessage(ctx, msg)
	require.NoError(t, err)
	require.False(t, inserted, "duplicate (fromNodeNum, packetId) id should be dropped")
}

func TestUnreadCountByChannel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, ts := range []int64{10, 20, 30} {
		_, err := db.InsertMessage(ctx, Message{
			ID: "1_" + string(rune('a'+i)), FromNodeNum: 1, ToNodeNum: 0xFFFFFFFF,
			Channel: 0, Portnum: 1, Text: "x", Timestamp: ts,
		})
		require.NoError(t, err)
	}

	ch := int32(0)
	count, err := db.UnreadCount(ctx, "anon:0", &ch, nil)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.NoError(t, db.SetReadState(ctx, "anon:0", 20))
	count, err = db.UnreadCount(ctx, "anon:0", &ch, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestTracerouteDedupWithinOneSecond(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tr := Traceroute{FromNodeNum: 1, ToNodeNum: 2, Route: []uint32{2, 1}, Timestamp: 1000}
	require.NoError(t, db.UpsertTraceroute(ctx, tr))
	tr.Timestamp = 1000 // exact duplicate within window
	require.NoError(t, db.UpsertTraceroute(ctx, tr))

	got, err := db.RecentTraceroutes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].HopCount)
}

func TestWriterCommitsSubmittedOp(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	done := make(chan error, 1)
	go func() {
		done <- w.Submit(ctx, func(opCtx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(opCtx, `INSERT INTO settings (key, value) VALUES ('probe', '1')`)
			return err
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not process submitted op in time")
	}

	v, ok, err := db.GetSetting(ctx, "probe")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestRetentionSweepBoundary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Unix(100_000, 0)
	policy := RetentionPolicy{
		Telemetry:    time.Hour,
		Messages:     time.Hour,
		PositionHist: time.Hour,
		NeighborInfo: time.Hour,
	}
	cutoff := now.Add(-time.Hour).Unix()

	for i, ts := range []int64{cutoff - 1, cutoff, cutoff + 1} {
		_, err := db.InsertMessage(ctx, Message{
			ID: "9_" + string(rune('a'+i)), FromNodeNum: 9, ToNodeNum: 0xFFFFFFFF,
			Channel: 0, Portnum: 1, Text: "x", Timestamp: ts,
		})
		require.NoError(t, err)
		require.NoError(t, db.InsertTelemetry(ctx, TelemetrySample{NodeNum: 9, Kind: "device", Metric: "voltage", Value: 3.7, Timestamp: ts}))
	}

	require.NoError(t, db.Sweep(ctx, policy, now))

	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "rows at or after the cutoff must survive")
	for _, m := range msgs {
		require.GreaterOrEqual(t, m.Timestamp, cutoff)
	}

	samples, err := db.ListTelemetry(ctx, 9, "device", 10)
	require.NoError(t, err)
	require.Len(t, samples, 2)
}

func TestPurgeMessagesClearsReadState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.InsertMessage(ctx, Message{ID: "1_1", FromNodeNum: 1, ToNodeNum: 2, Channel: 0, Portnum: 1, Text: "x", Timestamp: 5})
	require.NoError(t, err)
	require.NoError(t, db.SetReadState(ctx, "anon:0", 5))

	require.NoError(t, db.PurgeMessages(ctx))

	msgs, err := db.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)

	ch := int32(0)
	count, err := db.UnreadCount(ctx, "anon:0", &ch, nil)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSetReadStateIsIdempotentAndMonotonic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetReadState(ctx, "anon:0", 100))
	require.NoError(t, db.SetReadState(ctx, "anon:0", 100))
	require.NoError(t, db.SetReadState(ctx, "anon:0", 50)) // never rewinds

	_, err := db.InsertMessage(ctx, Message{ID: "3_1", FromNodeNum: 3, ToNodeNum: 0xFFFFFFFF, Channel: 0, Portnum: 1, Text: "x", Timestamp: 75})
	require.NoError(t, err)

	ch := int32(0)
	count, err := db.UnreadCount(ctx, "anon:0", &ch, nil)
	require.NoError(t, err)
	require.Zero(t, count, "timestamp 75 is older than the retained read mark 100")
}
