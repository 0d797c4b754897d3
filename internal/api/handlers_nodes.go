package api

import (
	"net/http"
	"strconv"

	"github.com/meshmonitor/meshmonitor/internal/derive"
	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
)

func (h *handlers) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.deps.DB.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	out := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]any{
			"nodeNum":             n.NodeNum,
			"nodeId":              n.NodeID,
			"longName":            n.LongName,
			"shortName":           n.ShortName,
			"hwModel":             n.HWModel,
			"lat":                 n.Lat,
			"lon":                 n.Lon,
			"hasPosition":         n.HasPosition,
			"isEstimatedPosition": derive.IsEstimatedPosition(n.PrecisionBits),
			"batteryLevel":        n.BatteryLevel,
			"hasBattery":          n.HasBattery,
			"lastHeard":           n.LastHeard,
			"hopsAway":            n.HopsAway,
			"hopsAwayKnown":       n.HopsAwayKnown,
			"hopColor":            derive.HopColorBucket(n.HopsAway, n.HopsAwayKnown),
			"isFavorite":          n.IsFavorite,
			"isMobile":            n.IsMobile,
			"viaMqtt":             n.ViaMQTT,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) refreshNodes(w http.ResponseWriter, r *http.Request) {
	if h.deps.Session.State() != session.Connected {
		writeError(w, http.StatusConflict, errInvalidArgument, "not connected")
		return
	}
	msg := meshproto.RequestNodeDB(session.NewOutboundPacketID())
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if err := h.deps.Session.SendNoAck(r.Context(), raw); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type favoriteRequest struct {
	IsFavorite   bool `json:"isFavorite"`
	SyncToDevice bool `json:"syncToDevice"`
}

// setFavorite records the local flag and reports device-sync status
// per-operation rather than silently swallowing it on older firmware.
func (h *handlers) setFavorite(w http.ResponseWriter, r *http.Request) {
	nodeNum, err := parseNodeID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, err.Error())
		return
	}
	var req favoriteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "invalid body")
		return
	}

	if err := h.deps.DB.SetFavorite(r.Context(), nodeNum, req.IsFavorite); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	sync := map[string]string{"status": "skipped", "reason": "syncToDevice not requested"}
	if req.SyncToDevice {
		sync = h.syncFavoriteToDevice(r, nodeNum, req.IsFavorite)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isFavorite": req.IsFavorite,
		"sync":       sync,
	})
}

func (h *handlers) syncFavoriteToDevice(r *http.Request, nodeNum uint32, favorite bool) map[string]string {
	if h.deps.Session.State() != session.Connected {
		return map[string]string{"status": "skipped", "reason": "device not connected"}
	}
	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	packetID := session.NewOutboundPacketID()
	msg := meshproto.SetFavorite(packetID, localNode, nodeNum, favorite)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		return map[string]string{"status": "failed", "reason": err.Error()}
	}
	if err := h.deps.Session.Send(r.Context(), packetID, raw); err != nil {
		// Silent degradation on firmware < 2.7 surfaces here as an ACK
		// timeout rather than a protocol error; report it instead of
		// hiding it.
		return map[string]string{"status": "failed", "reason": err.Error()}
	}
	return map[string]string{"status": "success"}
}

func (h *handlers) nodePositionHistory(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("id")
	hours := 24
	if hs := r.URL.Query().Get("hours"); hs != "" {
		n, err := strconv.Atoi(hs)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "hours must be a positive integer")
			return
		}
		hours = n
	}
	points, err := h.deps.DB.PositionHistory(r.Context(), nodeID, hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, points)
}
