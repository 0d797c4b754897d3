package api

import (
	"fmt"
	"strconv"
	"strings"
)

// nodeIDHex renders a node number in the textual "!xxxxxxxx" form.
func nodeIDHex(n uint32) string {
	return fmt.Sprintf("!%08x", n)
}

// parseNodeID parses the textual "!xxxxxxxx" node id form back into its 32-bit node number.
func parseNodeID(id string) (uint32, error) {
	hex := strings.TrimPrefix(id, "!")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("api: invalid node id %q: %w", id, err)
	}
	return uint32(v), nil
}
