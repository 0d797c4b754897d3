package api

import "net/http"

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	resp := map[string]any{
		"localNodeNum": localNode,
	}
	if localNode != 0 {
		resp["localNodeId"] = nodeIDHex(localNode)
	}
	writeJSON(w, http.StatusOK, resp)
}
