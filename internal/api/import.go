package api

import (
	"net/http"

	"kribdispatch/internal/integrations/csvdrop"
	"kribdispatch/internal/sched"
)

// JobImportHandler handles POST /v1/jobs/import with a CSV body.
// Invalid rows reject the whole batch; partial imports are harder to
// clean up than a re-upload.
func (s *Server) JobImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	jobs, err := csvdrop.ParseJobs(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
		return
	}
	for i := range jobs {
		jobs[i].TenantID = pr.Tenant
		if err := sched.ValidateJob(&jobs[i]); err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
	}
	created := 0
	for _, j := range jobs {
		if _, err := s.Store.CreateJob(r.Context(), j); err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		created++
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"created": created})
}
