package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

// listChannels omits role=0 (disabled) channels from the response while the
// store retains them.
func (h *handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.deps.DB.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(channels))
	for _, c := range channels {
		if c.Role == 0 {
			continue
		}
		out = append(out, map[string]any{
			"id":              c.ID,
			"name":            c.Name,
			"role":            c.Role,
			"uplinkEnabled":   c.UplinkEnabled,
			"downlinkEnabled": c.DownlinkEnabled,
			"encrypted":       c.PSK != "" && c.PSK != "AQ==",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type setChannelRequest struct {
	Name            string `json:"name"`
	PSK             string `json:"psk"` // base64; "AQ==" for the default key
	Role            int    `json:"role"`
	UplinkEnabled   bool   `json:"uplinkEnabled"`
	DownlinkEnabled bool   `json:"downlinkEnabled"`
	SyncToDevice    bool   `json:"syncToDevice"`
}

// setChannel updates one channel slot in the store and, when requested,
// writes it through to the radio as an admin command. Sync status is
// reported per-operation, the same shape the favorite sync uses.
func (h *handlers) setChannel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 || id > 7 {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "channel id must be 0-7")
		return
	}
	var req setChannelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "invalid body")
		return
	}
	if req.Role < 0 || req.Role > 2 {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "role must be 0, 1 or 2")
		return
	}
	psk := req.PSK
	if psk == "" {
		psk = "AQ=="
	}
	rawPSK, err := base64.StdEncoding.DecodeString(psk)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "psk must be base64")
		return
	}

	c := store.Channel{
		ID:              id,
		Name:            req.Name,
		PSK:             psk,
		Role:            req.Role,
		UplinkEnabled:   req.UplinkEnabled,
		DownlinkEnabled: req.DownlinkEnabled,
	}
	if err := h.deps.DB.UpsertChannel(r.Context(), c, unixNow()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	sync := map[string]string{"status": "skipped", "reason": "syncToDevice not requested"}
	if req.SyncToDevice {
		sync = h.syncChannelToDevice(r, c, rawPSK)
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": c.ID, "sync": sync})
}

func (h *handlers) syncChannelToDevice(r *http.Request, c store.Channel, rawPSK []byte) map[string]string {
	if h.deps.Session.State() != session.Connected {
		return map[string]string{"status": "skipped", "reason": "device not connected"}
	}
	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	packetID := session.NewOutboundPacketID()
	msg := meshproto.SetChannel(packetID, localNode, int32(c.ID), c.Name, rawPSK, int32(c.Role))
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		return map[string]string{"status": "failed", "reason": err.Error()}
	}
	if err := h.deps.Session.Send(r.Context(), packetID, raw); err != nil {
		return map[string]string{"status": "failed", "reason": err.Error()}
	}
	return map[string]string{"status": "success"}
}
