package ingest

import "testing"

func TestIsBridgeTraffic(t *testing.T) {
	cases := map[string]bool{
		"hello there":                false,
		"mqtt.broker seen":           true,
		"areyoumeshingwith.us":       true,
		"2.5.3.ab12cd":               true,
		"/firmware/update.js":        true,
		"a perfectly normal message": false,
	}
	for text, want := range cases {
		if got := isBridgeTraffic(text); got != want {
			t.Errorf("isBridgeTraffic(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestValidBatteryLevel(t *testing.T) {
	for _, v := range []int{0, 1, 50, 100, 101} {
		if !validBatteryLevel(v) {
			t.Errorf("validBatteryLevel(%d) = false, want true", v)
		}
	}
	for _, v := range []int{-1, 102, 255} {
		if validBatteryLevel(v) {
			t.Errorf("validBatteryLevel(%d) = true, want false", v)
		}
	}
}

func TestMessageIDFormat(t *testing.T) {
	if got, want := messageID(305419896, 43690), "305419896_43690"; got != want {
		t.Errorf("messageID() = %q, want %q", got, want)
	}
}

func TestNodeIDHexFormat(t *testing.T) {
	if got, want := nodeIDHex(0x12345678), "!12345678"; got != want {
		t.Errorf("nodeIDHex() = %q, want %q", got, want)
	}
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	// Roughly 2.8km apart.
	d := haversineMeters(40.0005, -74.0005, 40.0200, -74.0200)
	if d < 2000 || d > 3500 {
		t.Errorf("haversineMeters() = %.1fm, want roughly 2.8km", d)
	}
}
