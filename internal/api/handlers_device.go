package api

import (
	"context"
	"net/http"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
)

// rebootSeconds is how long the radio waits before actually rebooting.
const rebootSeconds = 5

// rebootDevice sends the reboot admin command, then runs the reboot FSM
// sequence in the background; clients follow the transition via
// GET /api/connection.
func (h *handlers) rebootDevice(w http.ResponseWriter, r *http.Request) {
	if h.deps.Session.State() != session.Connected {
		writeError(w, http.StatusConflict, errInvalidArgument, "not connected")
		return
	}
	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	msg := meshproto.Reboot(session.NewOutboundPacketID(), localNode, rebootSeconds)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if err := h.deps.Session.SendNoAck(r.Context(), raw); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	go h.deps.Session.Reboot(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebooting"})
}

type setOwnerRequest struct {
	LongName  string `json:"longName"`
	ShortName string `json:"shortName"`
}

// setOwner writes the local node's identity to the radio.
func (h *handlers) setOwner(w http.ResponseWriter, r *http.Request) {
	var req setOwnerRequest
	if err := readJSON(r, &req); err != nil || req.LongName == "" {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "longName is required")
		return
	}
	if h.deps.Session.State() != session.Connected {
		writeError(w, http.StatusConflict, errInvalidArgument, "not connected")
		return
	}
	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	packetID := session.NewOutboundPacketID()
	msg := meshproto.SetOwner(packetID, localNode, req.LongName, req.ShortName)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if err := h.deps.Session.Send(r.Context(), packetID, raw); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
