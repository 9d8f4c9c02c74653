package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kribdispatch/internal/model"
)

// apiDay is a Monday well in the future so search windows are never in
// the past relative to the wall clock.
var apiDay = time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)

func apiAt(h, m int) time.Time {
	return apiDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ROUTING_URL", "")
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func post(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	h(rr, req)
	return rr
}

func get(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func fullWeekHours() [7]model.DayHours {
	var wh [7]model.DayHours
	for i := range wh {
		wh[i] = model.DayHours{StartMin: 8 * 60, EndMin: 17 * 60}
	}
	return wh
}

func createTech(t *testing.T, s *Server, id string, lat, lng float64) model.Technician {
	t.Helper()
	rr := post(t, s.TechniciansHandler, "/v1/technicians", model.Technician{
		ID:           id,
		Name:         "Tech " + id,
		HomeBase:     model.GeoPoint{Lat: lat, Lng: lng},
		WorkingHours: fullWeekHours(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create technician: %d %s", rr.Code, rr.Body.String())
	}
	var out model.Technician
	decode(t, rr, &out)
	return out
}

func createJob(t *testing.T, s *Server, id string, lat, lng float64, durSec int) model.Job {
	t.Helper()
	rr := post(t, s.JobsHandler, "/v1/jobs", model.Job{
		ID:          id,
		Location:    model.GeoPoint{Lat: lat, Lng: lng},
		DurationSec: durSec,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create job: %d %s", rr.Code, rr.Body.String())
	}
	var out model.Job
	decode(t, rr, &out)
	return out
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	if rr := get(t, s.HealthHandler, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
	if rr := get(t, s.ReadyHandler, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("ready: %d", rr.Code)
	}
}

func TestTechnicianLifecycle(t *testing.T) {
	s := newTestServer(t)
	tech := createTech(t, s, "t1", 45, -73)
	if tech.Version != 1 || tech.TenantID != "t_demo" {
		t.Fatalf("created technician: %+v", tech)
	}

	rr := get(t, s.TechniciansHandler, "/v1/technicians")
	var list struct {
		Items []model.Technician `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 {
		t.Fatalf("list: %+v", list)
	}

	tech.Name = "renamed"
	b, _ := json.Marshal(tech)
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/technicians/t1", bytes.NewReader(b))
	s.TechniciansHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	var updated model.Technician
	decode(t, rr, &updated)
	if updated.Name != "renamed" || updated.Version != 2 {
		t.Fatalf("updated: %+v", updated)
	}

	rr = httptest.NewRecorder()
	s.TechniciansHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/technicians/t1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("archive: %d", rr.Code)
	}
	rr = get(t, s.TechniciansHandler, "/v1/technicians/t1")
	var archived model.Technician
	decode(t, rr, &archived)
	if !archived.Archived {
		t.Fatalf("archive flag not set: %+v", archived)
	}
}

func TestTechnicianValidationRejected(t *testing.T) {
	s := newTestServer(t)
	bad := model.Technician{ID: "t1", WorkingHours: [7]model.DayHours{{StartMin: 600, EndMin: 480}}}
	if rr := post(t, s.TechniciansHandler, "/v1/technicians", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("inverted hours accepted: %d %s", rr.Code, rr.Body.String())
	}
}

func TestScheduleSearchCommitFlow(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "t1", 45, -73)
	createJob(t, s, "j1", 45, -73, 3600)
	createJob(t, s, "j2", 45, -73, 3600)

	window := model.TimeWindow{Start: apiAt(0, 0), End: apiDay.AddDate(0, 0, 1)}
	rr := post(t, s.SearchHandler, "/v1/schedule/search", model.SearchRequest{JobID: "j1", SearchWindow: window})
	if rr.Code != http.StatusOK {
		t.Fatalf("search: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Candidates []model.Candidate `json:"candidates"`
		Outcome    string            `json:"outcome"`
	}
	decode(t, rr, &res)
	if res.Outcome != "found" || len(res.Candidates) == 0 {
		t.Fatalf("search result: %+v", res)
	}
	best := res.Candidates[0]
	if !best.Start.Equal(apiAt(8, 0)) {
		t.Fatalf("best slot: got %v, want 08:00", best.Start)
	}

	rr = post(t, s.CommitHandler, "/v1/schedule/commit", model.CommitRequest{JobID: "j1", TechnicianID: best.TechnicianID, Start: best.Start})
	if rr.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}

	rr = get(t, s.JobsHandler, "/v1/jobs/j1")
	var job model.Job
	decode(t, rr, &job)
	if job.Status != model.JobScheduled || job.Assigned == nil || !job.Assigned.Start.Equal(best.Start) {
		t.Fatalf("job after commit: %+v", job)
	}

	// the taken slot is infeasible for the next job
	rr = post(t, s.CommitHandler, "/v1/schedule/commit", model.CommitRequest{JobID: "j2", TechnicianID: "t1", Start: apiAt(8, 30)})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overlapping commit: %d %s", rr.Code, rr.Body.String())
	}
	// force bypasses feasibility but the store still refuses the overlap
	rr = post(t, s.CommitHandler, "/v1/schedule/commit", model.CommitRequest{JobID: "j2", TechnicianID: "t1", Start: apiAt(8, 30), Force: true})
	if rr.Code != http.StatusConflict {
		t.Fatalf("forced overlapping commit: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSearchUnknownJob(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "t1", 45, -73)
	window := model.TimeWindow{Start: apiAt(0, 0), End: apiDay.AddDate(0, 0, 1)}
	rr := post(t, s.SearchHandler, "/v1/schedule/search", model.SearchRequest{JobID: "ghost", SearchWindow: window})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job: %d", rr.Code)
	}
}

func TestSearchForbiddenForTechnicianRole(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(model.SearchRequest{JobID: "j1"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedule/search", bytes.NewReader(b))
	req.Header.Set("X-Role", "technician")
	s.SearchHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("technician role may not search: %d", rr.Code)
	}
}

func TestOptimizeAndApplyProposal(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "ta", 45, -73)
	createTech(t, s, "tb", 45, -73.5)
	createJob(t, s, "ja", 45, -73.5, 3600)
	createJob(t, s, "jb", 45, -73, 3600)

	// each job committed to the technician based farthest from it
	for _, c := range []model.CommitRequest{
		{JobID: "ja", TechnicianID: "ta", Start: apiAt(9, 0)},
		{JobID: "jb", TechnicianID: "tb", Start: apiAt(9, 0)},
	} {
		if rr := post(t, s.CommitHandler, "/v1/schedule/commit", c); rr.Code != http.StatusOK {
			t.Fatalf("commit %s: %d %s", c.JobID, rr.Code, rr.Body.String())
		}
	}

	window := model.TimeWindow{Start: apiAt(0, 0), End: apiDay.AddDate(0, 0, 1)}
	rr := post(t, s.OptimizeHandler, "/v1/schedule/optimize", model.OptimizeRequest{DateRange: window})
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var prop model.ScheduleProposal
	decode(t, rr, &prop)
	if len(prop.Changes) != 2 || prop.ScoreDelta <= 0 {
		t.Fatalf("proposal: %+v", prop)
	}

	rr = post(t, s.ProposalApplyHandler, "/v1/proposals/"+prop.ID+"/apply", struct{}{})
	if rr.Code != http.StatusOK {
		t.Fatalf("apply: %d %s", rr.Code, rr.Body.String())
	}

	var ja model.Job
	decode(t, get(t, s.JobsHandler, "/v1/jobs/ja"), &ja)
	if ja.Assigned == nil || ja.Assigned.TechnicianID != "tb" {
		t.Fatalf("ja after apply: %+v", ja)
	}

	// a proposal is single-use
	rr = post(t, s.ProposalApplyHandler, "/v1/proposals/"+prop.ID+"/apply", struct{}{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second apply: %d", rr.Code)
	}
}

func TestSwapEndpoint(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "ta", 45, -73)
	createTech(t, s, "tb", 45, -73.5)
	createJob(t, s, "ja", 45, -73.5, 3600)
	createJob(t, s, "jb", 45, -73, 3600)
	for _, c := range []model.CommitRequest{
		{JobID: "ja", TechnicianID: "ta", Start: apiAt(9, 0)},
		{JobID: "jb", TechnicianID: "tb", Start: apiAt(9, 0)},
	} {
		if rr := post(t, s.CommitHandler, "/v1/schedule/commit", c); rr.Code != http.StatusOK {
			t.Fatalf("commit %s: %d %s", c.JobID, rr.Code, rr.Body.String())
		}
	}

	rr := post(t, s.SwapHandler, "/v1/schedule/swap", model.SwapRequest{JobA: "ja", JobB: "jb"})
	if rr.Code != http.StatusOK {
		t.Fatalf("swap: %d %s", rr.Code, rr.Body.String())
	}
	var res model.SwapResult
	decode(t, rr, &res)
	if !res.Valid || res.ScoreDelta <= 0 {
		t.Fatalf("swap result: %+v", res)
	}
}

func TestDisruptionCancellation(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "t1", 45, -73)
	createJob(t, s, "j1", 45, -73, 3600)
	if rr := post(t, s.CommitHandler, "/v1/schedule/commit", model.CommitRequest{JobID: "j1", TechnicianID: "t1", Start: apiAt(9, 0)}); rr.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}

	rr := post(t, s.DisruptionsHandler, "/v1/disruptions", model.DisruptionEvent{
		Type:       model.DisruptionJobCancelled,
		JobID:      "j1",
		OccurredAt: apiAt(8, 0),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("disruption: %d %s", rr.Code, rr.Body.String())
	}
	var prop model.ScheduleProposal
	decode(t, rr, &prop)
	if len(prop.Changes) != 1 || prop.Changes[0].Outcome != model.OutcomeUnscheduled {
		t.Fatalf("proposal: %+v", prop)
	}

	var job model.Job
	decode(t, get(t, s.JobsHandler, "/v1/jobs/j1"), &job)
	if job.Status != model.JobCancelled || job.Assigned != nil {
		t.Fatalf("job after cancellation: %+v", job)
	}
	var tech model.Technician
	decode(t, get(t, s.TechniciansHandler, "/v1/technicians/t1"), &tech)
	if len(tech.Assignments) != 0 {
		t.Fatalf("slot not released: %+v", tech.Assignments)
	}
}

func TestDisruptionTimeOffPersistsOnTechnician(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "t1", 45, -73)
	createTech(t, s, "t2", 45, -73)
	createJob(t, s, "j1", 45, -73, 3600)
	if rr := post(t, s.CommitHandler, "/v1/schedule/commit", model.CommitRequest{JobID: "j1", TechnicianID: "t1", Start: apiAt(9, 0)}); rr.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}

	off := model.TimeWindow{Start: apiAt(8, 0), End: apiAt(17, 0)}
	rr := post(t, s.DisruptionsHandler, "/v1/disruptions", model.DisruptionEvent{
		Type:         model.DisruptionTechUnavailable,
		TechnicianID: "t1",
		TimeOff:      &off,
		OccurredAt:   apiAt(7, 30),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("disruption: %d %s", rr.Code, rr.Body.String())
	}
	var prop model.ScheduleProposal
	decode(t, rr, &prop)
	if len(prop.Changes) != 1 || prop.Changes[0].Outcome != model.OutcomeRescheduled || prop.Changes[0].ToTechnicianID != "t2" {
		t.Fatalf("proposal: %+v", prop)
	}

	var t1 model.Technician
	decode(t, get(t, s.TechniciansHandler, "/v1/technicians/t1"), &t1)
	if len(t1.TimeOff) != 1 {
		t.Fatalf("time off not persisted: %+v", t1)
	}
	var t2 model.Technician
	decode(t, get(t, s.TechniciansHandler, "/v1/technicians/t2"), &t2)
	if len(t2.Assignments) != 1 || t2.Assignments[0].JobID != "j1" {
		t.Fatalf("job not moved to t2: %+v", t2.Assignments)
	}
}

func TestJobImportCSV(t *testing.T) {
	s := newTestServer(t)
	csv := strings.Join([]string{
		"external_ref,address,lat,lng,duration_sec,priority,skills,certs",
		"ref-1,12 Main St,45.1,-73.2,3600,2,hvac;electrical,",
		"ref-2,90 Oak Ave,45.2,-73.3,1800,,,",
	}, "\n")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/import", strings.NewReader(csv))
	s.JobImportHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Created int `json:"created"`
	}
	decode(t, rr, &out)
	if out.Created != 2 {
		t.Fatalf("created: %+v", out)
	}

	var job model.Job
	decode(t, get(t, s.JobsHandler, "/v1/jobs/ref-1"), &job)
	if len(job.RequiredSkills) != 2 || job.Priority != 2 {
		t.Fatalf("imported job: %+v", job)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/import", strings.NewReader("ref-3,nowhere,badlat,0,600"))
	s.JobImportHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad row accepted: %d", rr.Code)
	}
}

func TestSubscriptionsLifecycle(t *testing.T) {
	s := newTestServer(t)
	rr := post(t, s.SubscriptionsHandler, "/v1/subscriptions", model.SubscriptionRequest{
		URL:    "https://hooks.example/dispatch",
		Events: []string{"slot.committed"},
		Secret: "s3cret",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	decode(t, rr, &sub)

	rr = get(t, s.SubscriptionsHandler, "/v1/subscriptions")
	var list struct {
		Items []model.Subscription `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 {
		t.Fatalf("list: %+v", list)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}

	rr = post(t, s.SubscriptionsHandler, "/v1/subscriptions", model.SubscriptionRequest{URL: "", Events: nil})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty subscription accepted: %d", rr.Code)
	}
}

func TestLocationReporting(t *testing.T) {
	s := newTestServer(t)
	createTech(t, s, "t1", 45, -73)

	body := bytes.NewReader([]byte(`{"lat":45.01,"lng":-73.02}`))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/technicians/t1/location", body)
	req.Header.Set("X-Role", "technician")
	req.Header.Set("X-Technician-Id", "t1")
	s.TechniciansHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("report location: %d %s", rr.Code, rr.Body.String())
	}

	// a technician cannot report for a colleague
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/technicians/t1/location", bytes.NewReader([]byte(`{"lat":1,"lng":2}`)))
	req.Header.Set("X-Role", "technician")
	req.Header.Set("X-Technician-Id", "t9")
	s.TechniciansHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("spoofed location accepted: %d", rr.Code)
	}

	rr = get(t, s.TechniciansHandler, "/v1/technicians/locations")
	var list struct {
		Items []TechLocation `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 || list.Items[0].Lat != 45.01 {
		t.Fatalf("locations: %+v", list)
	}
}
