package api

import (
	"net/http"

	"github.com/meshmonitor/meshmonitor/internal/session"
)

// poll serves the consolidated snapshot: nodes, newest
// messages, connection/config, visible channels, and telemetry sets in one
// round-trip. Clients wanting push instead subscribe to GET /api/events.
func (h *handlers) poll(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.deps.DB.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	messages, err := h.deps.DB.ListMessages(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	packetIDs := make([]uint32, 0, len(messages))
	idByPacket := make(map[uint32]string, len(messages))
	for _, m := range messages {
		packetID, err := packetIDFromMessageID(m.ID)
		if err != nil {
			continue
		}
		packetIDs = append(packetIDs, packetID)
		idByPacket[packetID] = m.ID
	}
	byPacket, err := h.deps.DB.ReactionsForPacketIDs(r.Context(), packetIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	reactions := map[string][]string{}
	for packetID, tapbacks := range byPacket {
		id, ok := idByPacket[packetID]
		if !ok {
			continue
		}
		for _, tb := range tapbacks {
			reactions[id] = append(reactions[id], tb.Text)
		}
	}
	channels, err := h.deps.DB.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	visible := channels[:0]
	for _, c := range channels {
		if c.Role != 0 {
			visible = append(visible, c)
		}
	}
	sets, err := h.telemetrySets(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	state := h.deps.Session.State()

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":     nodes,
		"messages":  messages,
		"reactions": reactions,
		"channels":  visible,
		"sets":      sets,
		"config": map[string]any{
			"localNodeNum": localNode,
			"localNodeId":  nodeIDHex(localNode),
		},
		"connection": map[string]any{
			"connected":        state == session.Connected,
			"userDisconnected": state == session.UserDisconnected,
			"state":            state.String(),
		},
	})
}
