package derive

import (
	"testing"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

func TestIsMobileDistanceThreshold(t *testing.T) {
	positions := []store.PositionHistoryPoint{
		{Lat: 40.0000, Lon: -74.0000, Timestamp: 1000},
		{Lat: 40.0005, Lon: -74.0005, Timestamp: 4600},
		{Lat: 40.0200, Lon: -74.0200, Timestamp: 8200},
	}
	if !IsMobile(positions) {
		t.Fatal("IsMobile() = false, want true for positions ~2.8km apart")
	}

	stationary := positions[:2]
	if IsMobile(stationary) {
		t.Fatal("IsMobile() = true, want false once the distant position is removed")
	}
}

func TestIsMobileSingleOrEmpty(t *testing.T) {
	if IsMobile(nil) {
		t.Error("IsMobile(nil) = true, want false")
	}
	if IsMobile([]store.PositionHistoryPoint{{Lat: 40, Lon: -74}}) {
		t.Error("IsMobile(single point) = true, want false")
	}
}

func TestIsMobileOrderIndependent(t *testing.T) {
	a := []store.PositionHistoryPoint{
		{Lat: 40.0000, Lon: -74.0000},
		{Lat: 40.0200, Lon: -74.0200},
		{Lat: 40.0001, Lon: -74.0001},
	}
	b := []store.PositionHistoryPoint{a[2], a[0], a[1]}
	if IsMobile(a) != IsMobile(b) {
		t.Error("IsMobile() depends on insertion order, want order-independent")
	}
}

func TestIsEstimatedPosition(t *testing.T) {
	cases := map[int]bool{
		0:  false,
		32: false,
		31: true,
		10: true,
	}
	for bits, want := range cases {
		if got := IsEstimatedPosition(bits); got != want {
			t.Errorf("IsEstimatedPosition(%d) = %v, want %v", bits, got, want)
		}
	}
}

func TestHopColorBucket(t *testing.T) {
	cases := []struct {
		hops  int
		known bool
		want  HopColor
	}{
		{0, false, HopColorUnknown},
		{0, true, HopColorLocal},
		{1, true, HopColorGreen},
		{2, true, HopColorGreen},
		{3, true, HopColorAmber},
		{4, true, HopColorAmber},
		{5, true, HopColorRed},
	}
	for _, c := range cases {
		if got := HopColorBucket(c.hops, c.known); got != c.want {
			t.Errorf("HopColorBucket(%d, %v) = %v, want %v", c.hops, c.known, got, c.want)
		}
	}
}

func TestUnreadCount(t *testing.T) {
	timestamps := []int64{100, 200, 300, 400}
	if got, want := UnreadCount(timestamps, 200), 2; got != want {
		t.Errorf("UnreadCount() = %d, want %d", got, want)
	}
	if got, want := UnreadCount(timestamps, 400), 0; got != want {
		t.Errorf("UnreadCount() = %d, want %d", got, want)
	}
	if got, want := UnreadCount(timestamps, 0), 4; got != want {
		t.Errorf("UnreadCount() = %d, want %d", got, want)
	}
}
