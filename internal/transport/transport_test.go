package transport

import "testing"

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		Disconnected:        "disconnected",
		Connecting:          "connecting",
		Configuring:         "configuring",
		Connected:           "connected",
		Rebooting:           "rebooting",
		UserDisconnected:    "user-disconnected",
		ConnectionState(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
