package api

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
)

func (h *handlers) recentTraceroutes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "limit must be 1-500")
			return
		}
		limit = n
	}
	trs, err := h.deps.DB.RecentTraceroutes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trs)
}

type tracerouteRequest struct {
	Destination string `json:"destination"`
}

func (h *handlers) requestTraceroute(w http.ResponseWriter, r *http.Request) {
	var req tracerouteRequest
	if err := readJSON(r, &req); err != nil || req.Destination == "" {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "destination is required")
		return
	}
	target, err := parseNodeID(req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, err.Error())
		return
	}
	if h.deps.Session.State() != session.Connected {
		writeError(w, http.StatusConflict, errInvalidArgument, "not connected")
		return
	}

	packetID := session.NewOutboundPacketID()
	msg := meshproto.TracerouteRequest(packetID, target)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	// The reply arrives asynchronously as a TRACEROUTE_APP packet through
	// ingest; don't hold the request open for the 30s reply window.
	go func() {
		if err := h.deps.Session.Send(context.Background(), packetID, raw); err != nil {
			h.deps.Log.Warn("api: traceroute request failed", zap.Uint32("target", target), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"packetId": packetID, "destination": req.Destination})
}
