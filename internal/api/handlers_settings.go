package api

import "net/http"

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deps.DB.AllSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handlers) postSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := readJSON(r, &updates); err != nil || len(updates) == 0 {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "body must be a non-empty string map")
		return
	}
	for k, v := range updates {
		if k == "" {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "setting key must not be empty")
			return
		}
		if err := h.deps.DB.SetSetting(r.Context(), k, v); err != nil {
			writeError(w, http.StatusInternalServerError, errInternal, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) purgeNodes(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PurgeNodes(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) purgeMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PurgeMessages(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) purgeTelemetry(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PurgeTelemetry(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
