package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
	"kribdispatch/internal/sched"
	"kribdispatch/internal/store"
	"kribdispatch/internal/webhooks"
)

// SearchHandler handles POST /v1/schedule/search
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = pr.Tenant
	}
	snap, err := s.Store.Snapshot(r.Context(), req.TenantID, req.TechnicianIDs)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	job := snap.Jobs[req.JobID]
	if job == nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown job "+req.JobID, r.URL.Path)
		return
	}
	finder := *s.Finder
	if req.Limit > 0 {
		finder.Limit = req.Limit
	}
	cands, err := finder.FindBestSlot(r.Context(), job, snap.Pool(), req.SearchWindow, snap.Now)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	outcome := "found"
	if len(cands) == 0 {
		outcome = "exhausted"
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cands, "outcome": outcome})
}

// CommitHandler handles POST /v1/schedule/commit
func (s *Server) CommitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = pr.Tenant
	}
	snap, err := s.Store.Snapshot(r.Context(), req.TenantID, nil)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	tech := snap.Technicians[req.TechnicianID]
	job := snap.Jobs[req.JobID]
	if tech == nil || job == nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown technician or job", r.URL.Path)
		return
	}
	// force skips soft feasibility, never the overlap check in the store
	if !req.Force {
		ev := s.Eval.Evaluate(r.Context(), snap.Pool(), tech, job, req.Start, snap.Now)
		if !ev.Feasible {
			names := []string{}
			for _, v := range ev.Violations {
				if v.Hard {
					names = append(names, v.Constraint)
				}
			}
			writeProblem(w, http.StatusUnprocessableEntity, "Infeasible placement", strings.Join(names, ", "), r.URL.Path)
			return
		}
	}
	t, j, err := s.Store.CommitPlacement(r.Context(), req.TenantID, req, tech.Version)
	if err != nil {
		metricCommitErr(err)
		writeError(w, err, r.URL.Path)
		return
	}
	data := map[string]any{"jobId": j.ID, "technicianId": t.ID, "start": req.Start.Format(time.RFC3339)}
	s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventSlotCommitted, data)
	s.Broker.Publish(req.TenantID, Event{Type: webhooks.EventSlotCommitted, Data: data})
	writeJSON(w, http.StatusOK, map[string]any{"technician": t, "job": j})
}

// OptimizeHandler handles POST /v1/schedule/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = pr.Tenant
	}
	snap, err := s.Store.Snapshot(r.Context(), req.TenantID, req.TechnicianIDs)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	opt := *s.Optimizer
	if req.MaxIterations > 0 {
		opt.MaxIterations = req.MaxIterations
	}
	prop, err := opt.Optimize(r.Context(), snap, req.DateRange)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	prop.TenantID = req.TenantID
	s.saveProposal(prop)
	writeJSON(w, http.StatusOK, prop)
}

// SwapHandler handles POST /v1/schedule/swap
func (s *Server) SwapHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	var req model.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = pr.Tenant
	}
	snap, err := s.Store.Snapshot(r.Context(), req.TenantID, nil)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	res, err := s.Optimizer.SimulateSwap(r.Context(), snap, req.JobA, req.JobB)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ProposalApplyHandler handles POST /v1/proposals/{id}/apply
func (s *Server) ProposalApplyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/proposals/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "apply" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	prop := s.getProposal(parts[0])
	if prop == nil || prop.TenantID != pr.Tenant {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown proposal "+parts[0], r.URL.Path)
		return
	}
	if err := s.Store.ApplyProposal(r.Context(), pr.Tenant, prop); err != nil {
		metricCommitErr(err)
		writeError(w, err, r.URL.Path)
		return
	}
	s.dropProposal(prop.ID)
	data := map[string]any{"proposalId": prop.ID, "changes": len(prop.Changes), "scoreDelta": prop.ScoreDelta}
	s.Pub.Emit(r.Context(), pr.Tenant, webhooks.EventProposalApplied, data)
	s.Broker.Publish(pr.Tenant, Event{Type: webhooks.EventProposalApplied, Data: data})
	writeJSON(w, http.StatusOK, map[string]any{"applied": true, "proposal": prop})
}

// DisruptionsHandler handles POST /v1/disruptions. The repair proposal
// is applied immediately; the response reports what moved and what
// needs a dispatcher's attention.
func (s *Server) DisruptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	var evt model.DisruptionEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if evt.TenantID == "" {
		evt.TenantID = pr.Tenant
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	snap, err := s.Store.Snapshot(r.Context(), evt.TenantID, nil)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	prop, err := s.Disruptions.Handle(r.Context(), snap, &evt)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	prop.TenantID = evt.TenantID
	if len(prop.Changes) > 0 {
		if err := s.Store.ApplyProposal(r.Context(), evt.TenantID, prop); err != nil {
			metricCommitErr(err)
			writeError(w, err, r.URL.Path)
			return
		}
	}
	// a time-off disruption also lands on the technician record
	if evt.Type == model.DisruptionTechUnavailable && evt.TimeOff != nil {
		if t, err := s.Store.GetTechnician(r.Context(), evt.TenantID, evt.TechnicianID); err == nil {
			t.TimeOff = append(t.TimeOff, *evt.TimeOff)
			_, _ = s.Store.UpdateTechnician(r.Context(), evt.TenantID, t)
		}
	}
	if evt.Type == model.DisruptionJobCancelled {
		if j, err := s.Store.GetJob(r.Context(), evt.TenantID, evt.JobID); err == nil {
			j.Status = model.JobCancelled
			_, _ = s.Store.UpdateJob(r.Context(), evt.TenantID, j)
		}
	}

	s.Pub.Emit(r.Context(), evt.TenantID, webhooks.EventDisruptionReceived, map[string]any{"type": evt.Type, "jobId": evt.JobID, "technicianId": evt.TechnicianID})
	for _, ch := range prop.Changes {
		data := map[string]any{"jobId": ch.JobID, "outcome": ch.Outcome, "rationale": ch.Rationale}
		if ch.ToTechnicianID != "" {
			data["technicianId"] = ch.ToTechnicianID
		}
		switch ch.Outcome {
		case model.OutcomeRescheduled:
			s.Pub.Emit(r.Context(), evt.TenantID, webhooks.EventJobRescheduled, data)
			s.Broker.Publish(evt.TenantID, Event{Type: webhooks.EventJobRescheduled, Data: data})
		case model.OutcomeManualReview:
			s.Pub.Emit(r.Context(), evt.TenantID, webhooks.EventJobManualReview, data)
			s.Broker.Publish(evt.TenantID, Event{Type: webhooks.EventJobManualReview, Data: data})
		}
	}
	writeJSON(w, http.StatusOK, prop)
}

// TechniciansHandler handles /v1/technicians and subpaths.
func (s *Server) TechniciansHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	if r.URL.Path == "/v1/technicians" {
		switch r.Method {
		case http.MethodPost:
			var t model.Technician
			if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			if t.TenantID == "" {
				t.TenantID = pr.Tenant
			}
			if err := sched.ValidateTechnician(&t); err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			out, err := s.Store.CreateTechnician(r.Context(), t)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusCreated, out)
		case http.MethodGet:
			cursor := r.URL.Query().Get("cursor")
			limit := 100
			if v := r.URL.Query().Get("limit"); v != "" {
				fmt.Sscanf(v, "%d", &limit)
			}
			items, next, err := s.Store.ListTechnicians(r.Context(), pr.Tenant, cursor, limit)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/technicians/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "locations" {
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Locations.ListByTenant(pr.Tenant)})
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			t, err := s.Store.GetTechnician(r.Context(), pr.Tenant, id)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, t)
		case http.MethodPut:
			var t model.Technician
			if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			t.ID = id
			t.TenantID = pr.Tenant
			if err := sched.ValidateTechnician(&t); err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			out, err := s.Store.UpdateTechnician(r.Context(), pr.Tenant, t)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodDelete:
			if err := s.Store.ArchiveTechnician(r.Context(), pr.Tenant, id); err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	action := strings.Join(parts[1:], "/")
	switch action {
	case "events/stream":
		s.technicianEventStream(w, r, pr.Tenant, id)
	case "location":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		// technicians may only report their own position
		if pr.Role == "technician" && pr.TechnicianID != id {
			writeProblem(w, http.StatusForbidden, "Forbidden", "cannot report another technician's location", r.URL.Path)
			return
		}
		var in struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
			TS  string  `json:"ts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.TS == "" {
			in.TS = time.Now().UTC().Format(time.RFC3339)
		}
		s.Locations.Upsert(pr.Tenant, id, in.Lat, in.Lng, in.TS)
		s.Broker.Publish(pr.Tenant, Event{Type: "technician.location", Data: map[string]any{"technicianId": id, "lat": in.Lat, "lng": in.Lng, "ts": in.TS}})
		w.WriteHeader(http.StatusAccepted)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// technicianEventStream serves SSE filtered to one technician.
func (s *Server) technicianEventStream(w http.ResponseWriter, r *http.Request, tenant, techID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(tenant)
	defer s.Broker.Unsubscribe(tenant, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"technicianId\":\"%s\",\"ts\":\"%s\"}\n\n", techID, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			if tid, ok := evt.Data["technicianId"].(string); ok && tid != "" && tid != techID {
				continue
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"technicianId\":\"%s\",\"ts\":\"%s\"}\n\n", techID, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// JobsHandler handles /v1/jobs and /v1/jobs/{id}.
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	if r.URL.Path == "/v1/jobs" {
		switch r.Method {
		case http.MethodPost:
			var j model.Job
			if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			if j.TenantID == "" {
				j.TenantID = pr.Tenant
			}
			if err := sched.ValidateJob(&j); err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			out, err := s.Store.CreateJob(r.Context(), j)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusCreated, out)
		case http.MethodGet:
			status := r.URL.Query().Get("status")
			cursor := r.URL.Query().Get("cursor")
			limit := 100
			if v := r.URL.Query().Get("limit"); v != "" {
				fmt.Sscanf(v, "%d", &limit)
			}
			items, next, err := s.Store.ListJobs(r.Context(), pr.Tenant, status, cursor, limit)
			if err != nil {
				writeError(w, err, r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	switch r.Method {
	case http.MethodGet:
		j, err := s.Store.GetJob(r.Context(), pr.Tenant, id)
		if err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, j)
	case http.MethodPut:
		var j model.Job
		if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		j.ID = id
		j.TenantID = pr.Tenant
		if err := sched.ValidateJob(&j); err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		out, err := s.Store.UpdateJob(r.Context(), pr.Tenant, j)
		if err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = pr.Tenant
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), pr.Tenant, cursor, limit)
		if err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), pr.Tenant, id); err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.Store.ListTechnicians(r.Context(), "ready-probe", "", 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func metricCommitErr(err error) {
	if errors.Is(err, store.ErrConflict) {
		metrics.CommitConflicts.Inc()
	}
}
