package api

import (
	"net/http"

	"github.com/meshmonitor/meshmonitor/internal/derive"
)

// neighborInfo returns the neighbor graph joined with each endpoint's
// last known position, so the UI can draw edges without a second
// round-trip.
func (h *handlers) neighborInfo(w http.ResponseWriter, r *http.Request) {
	edges, err := h.deps.DB.ListNeighbors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	positions := map[uint32]map[string]float64{}
	lookup := func(nodeNum uint32) map[string]float64 {
		if p, ok := positions[nodeNum]; ok {
			return p
		}
		n, err := h.deps.DB.GetNode(r.Context(), nodeNum)
		if err != nil || n == nil || !n.HasPosition {
			positions[nodeNum] = nil
			return nil
		}
		p := map[string]float64{"lat": n.Lat, "lon": n.Lon}
		positions[nodeNum] = p
		return p
	}

	out := make([]map[string]any, len(edges))
	for i, e := range edges {
		out[i] = map[string]any{
			"nodeNum":          e.NodeNum,
			"nodeId":           nodeIDHex(e.NodeNum),
			"neighborNodeNum":  e.NeighborNodeNum,
			"neighborNodeId":   nodeIDHex(e.NeighborNodeNum),
			"snr":              e.SNR,
			"lastRxTime":       e.LastRxTime,
			"timestamp":        e.Timestamp,
			"nodePosition":     lookup(e.NodeNum),
			"neighborPosition": lookup(e.NeighborNodeNum),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// availableTelemetryNodes reports which node sets have telemetry, weather
// (environment telemetry), and estimated positions.
func (h *handlers) availableTelemetryNodes(w http.ResponseWriter, r *http.Request) {
	sets, err := h.telemetrySets(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *handlers) telemetrySets(r *http.Request) (map[string][]string, error) {
	kinds, err := h.deps.DB.AvailableTelemetryNodes(r.Context())
	if err != nil {
		return nil, err
	}

	sets := map[string][]string{
		"telemetry":         {},
		"weather":           {},
		"pkc":               {},
		"estimatedPosition": {},
	}
	for nodeNum, nodeKinds := range kinds {
		id := nodeIDHex(nodeNum)
		sets["telemetry"] = append(sets["telemetry"], id)
		for _, k := range nodeKinds {
			if k == "environment" {
				sets["weather"] = append(sets["weather"], id)
				break
			}
		}
	}

	nodes, err := h.deps.DB.ListNodes(r.Context())
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.HasPosition && derive.IsEstimatedPosition(n.PrecisionBits) {
			sets["estimatedPosition"] = append(sets["estimatedPosition"], n.NodeID)
		}
		if n.PublicKey != "" {
			sets["pkc"] = append(sets["pkc"], n.NodeID)
		}
	}
	return sets, nil
}
