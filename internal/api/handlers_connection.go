package api

import (
	"net/http"

	"github.com/meshmonitor/meshmonitor/internal/session"
)

func (h *handlers) getConnection(w http.ResponseWriter, r *http.Request) {
	state := h.deps.Session.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":        state == session.Connected,
		"userDisconnected": state == session.UserDisconnected,
		"state":            state.String(),
	})
}

func (h *handlers) postDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Session.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) postReconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Session.Reconnect(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
