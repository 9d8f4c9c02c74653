package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kribdispatch/internal/model"
	"kribdispatch/internal/sched"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu            sync.Mutex
	techs         map[string]*model.Technician
	techsByTenant map[string][]string
	jobs          map[string]*model.Job
	jobsByTenant  map[string][]string
	subs          map[string][]model.Subscription
	deliveries    map[string]*memDelivery
	deliveryOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		techs:         map[string]*model.Technician{},
		techsByTenant: map[string][]string{},
		jobs:          map[string]*model.Job{},
		jobsByTenant:  map[string][]string{},
		subs:          map[string][]model.Subscription{},
		deliveries:    map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateTechnician(ctx context.Context, t model.Technician) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Version = 1
	m.techs[t.ID] = cloneTech(&t)
	m.techsByTenant[t.TenantID] = append(m.techsByTenant[t.TenantID], t.ID)
	return t, nil
}

func (m *Memory) GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.techs[id]
	if t == nil || t.TenantID != tenantID {
		return model.Technician{}, ErrNotFound
	}
	return *cloneTech(t), nil
}

func (m *Memory) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.techsByTenant[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Technician{}
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, *cloneTech(m.techs[ids[i]]))
	}
	next := ""
	if start+len(out) < len(ids) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// UpdateTechnician replaces profile fields but never the calendar;
// assignments only move through CommitPlacement and ApplyProposal.
func (m *Memory) UpdateTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.techs[t.ID]
	if cur == nil || cur.TenantID != tenantID {
		return model.Technician{}, ErrNotFound
	}
	if t.Version != 0 && t.Version != cur.Version {
		return model.Technician{}, ErrConflict
	}
	cur.Name = t.Name
	cur.HomeBase = t.HomeBase
	cur.WorkingHours = t.WorkingHours
	cur.Skills = append([]string(nil), t.Skills...)
	cur.Certifications = append([]string(nil), t.Certifications...)
	cur.TimeOff = append([]model.TimeWindow(nil), t.TimeOff...)
	cur.Archived = t.Archived
	cur.Version++
	return *cloneTech(cur), nil
}

func (m *Memory) ArchiveTechnician(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.techs[id]
	if t == nil || t.TenantID != tenantID {
		return ErrNotFound
	}
	t.Archived = true
	t.Version++
	return nil
}

func (m *Memory) CreateJob(ctx context.Context, j model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = model.JobUnscheduled
	}
	j.Assigned = nil
	m.jobs[j.ID] = cloneJob(&j)
	m.jobsByTenant[j.TenantID] = append(m.jobsByTenant[j.TenantID], j.ID)
	return j, nil
}

func (m *Memory) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil || j.TenantID != tenantID {
		return model.Job{}, ErrNotFound
	}
	return *cloneJob(j), nil
}

func (m *Memory) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.jobsByTenant[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Job{}
	for i := start; i < len(ids) && len(out) < limit; i++ {
		j := m.jobs[ids[i]]
		if status == "" || j.Status == status {
			out = append(out, *cloneJob(j))
		}
	}
	next := ""
	if len(out) > 0 && start+limit < len(ids) {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) UpdateJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.jobs[j.ID]
	if cur == nil || cur.TenantID != tenantID {
		return model.Job{}, ErrNotFound
	}
	cur.Address = j.Address
	cur.Location = j.Location
	cur.RequiredSkills = append([]string(nil), j.RequiredSkills...)
	cur.RequiredCerts = append([]string(nil), j.RequiredCerts...)
	cur.DurationSec = j.DurationSec
	cur.PreferredWindows = append([]model.TimeWindow(nil), j.PreferredWindows...)
	cur.Priority = j.Priority
	if j.Status != "" {
		cur.Status = j.Status
	}
	return *cloneJob(cur), nil
}

func (m *Memory) Snapshot(ctx context.Context, tenantID string, technicianIDs []string) (*sched.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &sched.Snapshot{
		Technicians: map[string]*model.Technician{},
		Jobs:        map[string]*model.Job{},
		Now:         time.Now().UTC(),
	}
	want := map[string]bool{}
	for _, id := range technicianIDs {
		want[id] = true
	}
	for _, id := range m.techsByTenant[tenantID] {
		if len(want) > 0 && !want[id] {
			continue
		}
		snap.Technicians[id] = cloneTech(m.techs[id])
	}
	for _, id := range m.jobsByTenant[tenantID] {
		snap.Jobs[id] = cloneJob(m.jobs[id])
	}
	return snap, nil
}

func (m *Memory) CommitPlacement(ctx context.Context, tenantID string, req model.CommitRequest, expectVersion int) (model.Technician, model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.techs[req.TechnicianID]
	if t == nil || t.TenantID != tenantID {
		return model.Technician{}, model.Job{}, ErrNotFound
	}
	j := m.jobs[req.JobID]
	if j == nil || j.TenantID != tenantID {
		return model.Technician{}, model.Job{}, ErrNotFound
	}
	if t.Archived || j.Status == model.JobCompleted || j.Status == model.JobCancelled {
		return model.Technician{}, model.Job{}, ErrConflict
	}
	if expectVersion > 0 && t.Version != expectVersion {
		return model.Technician{}, model.Job{}, ErrConflict
	}
	w := model.TimeWindow{Start: req.Start, End: req.Start.Add(j.Duration())}
	if blocked(t, j.ID, w) {
		return model.Technician{}, model.Job{}, ErrConflict
	}
	// moving a scheduled job releases its old slot first
	if j.Assigned != nil {
		if old := m.techs[j.Assigned.TechnicianID]; old != nil {
			if removeAssignment(old, j.ID) && old.ID != t.ID {
				old.Version++
			}
		}
	}
	placeAssignment(t, j, req.Start)
	t.Version++
	return *cloneTech(t), *cloneJob(j), nil
}

// ApplyProposal applies every change or none. Each change's source
// placement must still match current state.
func (m *Memory) ApplyProposal(ctx context.Context, tenantID string, p *model.ScheduleProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// stage clones of every touched technician and job
	techs := map[string]*model.Technician{}
	jobs := map[string]*model.Job{}
	stageTech := func(id string) *model.Technician {
		if t, ok := techs[id]; ok {
			return t
		}
		cur := m.techs[id]
		if cur == nil || cur.TenantID != tenantID {
			return nil
		}
		techs[id] = cloneTech(cur)
		return techs[id]
	}
	for _, ch := range p.Changes {
		j := m.jobs[ch.JobID]
		if j == nil || j.TenantID != tenantID {
			return ErrNotFound
		}
		jobs[ch.JobID] = cloneJob(j)
	}

	// release every source slot before placing anything, so pairwise
	// swaps inside one proposal do not collide with themselves
	for _, ch := range p.Changes {
		j := jobs[ch.JobID]
		if ch.FromTechnicianID == "" {
			continue
		}
		from := stageTech(ch.FromTechnicianID)
		if from == nil {
			return ErrNotFound
		}
		if ch.FromStart != nil && !assignmentAt(from, ch.JobID, *ch.FromStart) {
			return ErrConflict
		}
		removeAssignment(from, ch.JobID)
		j.Status = model.JobUnscheduled
		j.Assigned = nil
	}
	for _, ch := range p.Changes {
		j := jobs[ch.JobID]
		if ch.ToTechnicianID == "" || ch.ToStart == nil {
			continue
		}
		to := stageTech(ch.ToTechnicianID)
		if to == nil {
			return ErrNotFound
		}
		w := model.TimeWindow{Start: *ch.ToStart, End: ch.ToStart.Add(j.Duration())}
		if to.Archived || blocked(to, j.ID, w) {
			return ErrConflict
		}
		placeAssignment(to, j, *ch.ToStart)
	}

	for id, t := range techs {
		t.Version++
		m.techs[id] = t
	}
	for id, j := range jobs {
		m.jobs[id] = j
	}
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveryOrder = append(m.deliveryOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

// Calendar helpers shared by the store implementations.

// blocked reports whether window w collides with the technician's
// calendar, ignoring the job's own current slot.
func blocked(t *model.Technician, jobID string, w model.TimeWindow) bool {
	for _, a := range t.Assignments {
		if a.JobID == jobID {
			continue
		}
		if a.Window().Overlaps(w) {
			return true
		}
	}
	for _, off := range t.TimeOff {
		if off.Overlaps(w) {
			return true
		}
	}
	return false
}

func placeAssignment(t *model.Technician, j *model.Job, start time.Time) {
	removeAssignment(t, j.ID)
	t.Assignments = append(t.Assignments, model.Assignment{JobID: j.ID, Start: start, DurationSec: j.DurationSec, Location: j.Location})
	sort.Slice(t.Assignments, func(a, b int) bool { return t.Assignments[a].Start.Before(t.Assignments[b].Start) })
	j.Status = model.JobScheduled
	j.Assigned = &model.JobAssignment{TechnicianID: t.ID, Start: start}
}

func removeAssignment(t *model.Technician, jobID string) bool {
	for i, a := range t.Assignments {
		if a.JobID == jobID {
			t.Assignments = append(t.Assignments[:i], t.Assignments[i+1:]...)
			return true
		}
	}
	return false
}

func assignmentAt(t *model.Technician, jobID string, start time.Time) bool {
	for _, a := range t.Assignments {
		if a.JobID == jobID && a.Start.Equal(start) {
			return true
		}
	}
	return false
}

func cloneTech(t *model.Technician) *model.Technician {
	c := *t
	c.Skills = append([]string(nil), t.Skills...)
	c.Certifications = append([]string(nil), t.Certifications...)
	c.TimeOff = append([]model.TimeWindow(nil), t.TimeOff...)
	c.Assignments = append([]model.Assignment(nil), t.Assignments...)
	return &c
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	c.RequiredSkills = append([]string(nil), j.RequiredSkills...)
	c.RequiredCerts = append([]string(nil), j.RequiredCerts...)
	c.PreferredWindows = append([]model.TimeWindow(nil), j.PreferredWindows...)
	if j.Assigned != nil {
		a := *j.Assigned
		c.Assigned = &a
	}
	return &c
}
