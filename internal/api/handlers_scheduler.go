package api

import "net/http"

// schedulerJobs exposes the periodic-job table (name, cadence, enabled,
// next run) for operator visibility.
func (h *handlers) schedulerJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.deps.Scheduler.Jobs()
	out := make([]map[string]any, len(jobs))
	for i, j := range jobs {
		out[i] = map[string]any{
			"name":            j.Name,
			"intervalSeconds": int(j.Interval.Seconds()),
			"enabled":         j.Enabled,
			"nextRun":         j.NextRun,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
