package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kribdispatch/internal/model"
	"kribdispatch/internal/sched"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

const techniciansCols = `id, tenant_id, name, home_lat, home_lng, working_hours, skills, certifications, time_off, assignments, archived, version`
const jobCols = `id, tenant_id, COALESCE(address,''), lat, lng, required_skills, required_certs, duration_sec, preferred_windows, priority, status, COALESCE(assigned_technician_id,''), assigned_start`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTechnician(r rowScanner) (model.Technician, error) {
	var t model.Technician
	var hours, skills, certs, timeOff, assigns []byte
	if err := r.Scan(&t.ID, &t.TenantID, &t.Name, &t.HomeBase.Lat, &t.HomeBase.Lng, &hours, &skills, &certs, &timeOff, &assigns, &t.Archived, &t.Version); err != nil {
		return model.Technician{}, err
	}
	_ = json.Unmarshal(hours, &t.WorkingHours)
	_ = json.Unmarshal(skills, &t.Skills)
	_ = json.Unmarshal(certs, &t.Certifications)
	_ = json.Unmarshal(timeOff, &t.TimeOff)
	_ = json.Unmarshal(assigns, &t.Assignments)
	return t, nil
}

func scanJob(r rowScanner) (model.Job, error) {
	var j model.Job
	var skills, certs, windows []byte
	var assignedTech string
	var assignedStart sql.NullTime
	if err := r.Scan(&j.ID, &j.TenantID, &j.Address, &j.Location.Lat, &j.Location.Lng, &skills, &certs, &j.DurationSec, &windows, &j.Priority, &j.Status, &assignedTech, &assignedStart); err != nil {
		return model.Job{}, err
	}
	_ = json.Unmarshal(skills, &j.RequiredSkills)
	_ = json.Unmarshal(certs, &j.RequiredCerts)
	_ = json.Unmarshal(windows, &j.PreferredWindows)
	if assignedTech != "" && assignedStart.Valid {
		j.Assigned = &model.JobAssignment{TechnicianID: assignedTech, Start: assignedStart.Time}
	}
	return j, nil
}

func toJSONB(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) CreateTechnician(ctx context.Context, t model.Technician) (model.Technician, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Version = 1
	_, err := p.db.ExecContext(ctx, `INSERT INTO technicians (id, tenant_id, name, home_lat, home_lng, working_hours, skills, certifications, time_off, assignments, archived, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'[]',false,1)`,
		t.ID, t.TenantID, t.Name, t.HomeBase.Lat, t.HomeBase.Lng, toJSONB(t.WorkingHours), toJSONB(t.Skills), toJSONB(t.Certifications), toJSONB(t.TimeOff))
	if err != nil {
		return model.Technician{}, err
	}
	t.Assignments = nil
	t.Archived = false
	return t, nil
}

func (p *Postgres) GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	t, err := scanTechnician(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Technician{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Technician{}
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdateTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Technician{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, t.ID)
	cur, err := scanTechnician(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Technician{}, ErrNotFound
	}
	if err != nil {
		return model.Technician{}, err
	}
	if t.Version != 0 && t.Version != cur.Version {
		return model.Technician{}, ErrConflict
	}
	cur.Name = t.Name
	cur.HomeBase = t.HomeBase
	cur.WorkingHours = t.WorkingHours
	cur.Skills = t.Skills
	cur.Certifications = t.Certifications
	cur.TimeOff = t.TimeOff
	cur.Archived = t.Archived
	cur.Version++
	if err := writeTechnician(ctx, tx, &cur); err != nil {
		return model.Technician{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Technician{}, err
	}
	return cur, nil
}

func (p *Postgres) ArchiveTechnician(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE technicians SET archived=true, version=version+1 WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateJob(ctx context.Context, j model.Job) (model.Job, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = model.JobUnscheduled
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO jobs (id, tenant_id, address, lat, lng, required_skills, required_certs, duration_sec, preferred_windows, priority, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		j.ID, j.TenantID, nullIfEmpty(j.Address), j.Location.Lat, j.Location.Lng, toJSONB(j.RequiredSkills), toJSONB(j.RequiredCerts), j.DurationSec, toJSONB(j.PreferredWindows), j.Priority, j.Status)
	if err != nil {
		return model.Job{}, err
	}
	j.Assigned = nil
	return j, nil
}

func (p *Postgres) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	return j, err
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		if cursor != "" {
			rows, err = p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND status=$2 AND id > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
		} else {
			rows, err = p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
		}
	} else {
		if cursor != "" {
			rows, err = p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
		} else {
			rows, err = p.db.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
		}
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, j)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE jobs SET address=$3, lat=$4, lng=$5, required_skills=$6, required_certs=$7, duration_sec=$8, preferred_windows=$9, priority=$10, status=COALESCE(NULLIF($11,''), status)
		WHERE tenant_id=$1 AND id=$2`,
		tenantID, j.ID, nullIfEmpty(j.Address), j.Location.Lat, j.Location.Lng, toJSONB(j.RequiredSkills), toJSONB(j.RequiredCerts), j.DurationSec, toJSONB(j.PreferredWindows), j.Priority, j.Status)
	if err != nil {
		return model.Job{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Job{}, ErrNotFound
	}
	return p.GetJob(ctx, tenantID, j.ID)
}

func (p *Postgres) Snapshot(ctx context.Context, tenantID string, technicianIDs []string) (*sched.Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := &sched.Snapshot{
		Technicians: map[string]*model.Technician{},
		Jobs:        map[string]*model.Job{},
		Now:         time.Now().UTC(),
	}
	want := map[string]bool{}
	for _, id := range technicianIDs {
		want[id] = true
	}
	rows, err := tx.QueryContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if len(want) > 0 && !want[t.ID] {
			continue
		}
		c := t
		snap.Technicians[t.ID] = &c
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		c := j
		snap.Jobs[j.ID] = &c
	}
	rows.Close()
	return snap, tx.Commit()
}

func (p *Postgres) CommitPlacement(ctx context.Context, tenantID string, req model.CommitRequest, expectVersion int) (model.Technician, model.Job, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Technician{}, model.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, req.TechnicianID)
	t, err := scanTechnician(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Technician{}, model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Technician{}, model.Job{}, err
	}
	row = tx.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, req.JobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Technician{}, model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Technician{}, model.Job{}, err
	}

	if t.Archived || j.Status == model.JobCompleted || j.Status == model.JobCancelled {
		return model.Technician{}, model.Job{}, ErrConflict
	}
	if expectVersion > 0 && t.Version != expectVersion {
		return model.Technician{}, model.Job{}, ErrConflict
	}
	w := model.TimeWindow{Start: req.Start, End: req.Start.Add(j.Duration())}
	if blocked(&t, j.ID, w) {
		return model.Technician{}, model.Job{}, ErrConflict
	}

	if j.Assigned != nil && j.Assigned.TechnicianID != t.ID {
		row = tx.QueryRowContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, j.Assigned.TechnicianID)
		old, err := scanTechnician(row)
		if err == nil && removeAssignment(&old, j.ID) {
			old.Version++
			if err := writeTechnician(ctx, tx, &old); err != nil {
				return model.Technician{}, model.Job{}, err
			}
		}
	}

	placeAssignment(&t, &j, req.Start)
	t.Version++
	if err := writeTechnician(ctx, tx, &t); err != nil {
		return model.Technician{}, model.Job{}, err
	}
	if err := writeJobPlacement(ctx, tx, &j); err != nil {
		return model.Technician{}, model.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Technician{}, model.Job{}, err
	}
	return t, j, nil
}

func (p *Postgres) ApplyProposal(ctx context.Context, tenantID string, prop *model.ScheduleProposal) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// lock every touched technician in id order to avoid deadlocks
	techIDs := map[string]bool{}
	for _, ch := range prop.Changes {
		if ch.FromTechnicianID != "" {
			techIDs[ch.FromTechnicianID] = true
		}
		if ch.ToTechnicianID != "" {
			techIDs[ch.ToTechnicianID] = true
		}
	}
	ordered := make([]string, 0, len(techIDs))
	for id := range techIDs {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	techs := map[string]*model.Technician{}
	for _, id := range ordered {
		row := tx.QueryRowContext(ctx, `SELECT `+techniciansCols+` FROM technicians WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
		t, err := scanTechnician(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		c := t
		techs[id] = &c
	}
	jobs := map[string]*model.Job{}
	for _, ch := range prop.Changes {
		row := tx.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, ch.JobID)
		j, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		c := j
		jobs[ch.JobID] = &c
	}

	// release every source slot before placing anything, so pairwise
	// swaps inside one proposal do not collide with themselves
	for _, ch := range prop.Changes {
		j := jobs[ch.JobID]
		if ch.FromTechnicianID == "" {
			continue
		}
		from := techs[ch.FromTechnicianID]
		if ch.FromStart != nil && !assignmentAt(from, ch.JobID, *ch.FromStart) {
			return ErrConflict
		}
		removeAssignment(from, ch.JobID)
		j.Status = model.JobUnscheduled
		j.Assigned = nil
	}
	for _, ch := range prop.Changes {
		j := jobs[ch.JobID]
		if ch.ToTechnicianID == "" || ch.ToStart == nil {
			continue
		}
		to := techs[ch.ToTechnicianID]
		w := model.TimeWindow{Start: *ch.ToStart, End: ch.ToStart.Add(j.Duration())}
		if to.Archived || blocked(to, j.ID, w) {
			return ErrConflict
		}
		placeAssignment(to, j, *ch.ToStart)
	}

	for _, id := range ordered {
		techs[id].Version++
		if err := writeTechnician(ctx, tx, techs[id]); err != nil {
			return err
		}
	}
	for _, j := range jobs {
		if err := writeJobPlacement(ctx, tx, j); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func writeTechnician(ctx context.Context, tx *sql.Tx, t *model.Technician) error {
	_, err := tx.ExecContext(ctx, `UPDATE technicians SET name=$3, home_lat=$4, home_lng=$5, working_hours=$6, skills=$7, certifications=$8, time_off=$9, assignments=$10, archived=$11, version=$12
		WHERE tenant_id=$1 AND id=$2`,
		t.TenantID, t.ID, t.Name, t.HomeBase.Lat, t.HomeBase.Lng, toJSONB(t.WorkingHours), toJSONB(t.Skills), toJSONB(t.Certifications), toJSONB(t.TimeOff), toJSONB(t.Assignments), t.Archived, t.Version)
	return err
}

func writeJobPlacement(ctx context.Context, tx *sql.Tx, j *model.Job) error {
	var techID, start any
	if j.Assigned != nil {
		techID = j.Assigned.TechnicianID
		start = j.Assigned.Start
	}
	_, err := tx.ExecContext(ctx, `UPDATE jobs SET status=$3, assigned_technician_id=$4, assigned_start=$5, duration_sec=$6 WHERE tenant_id=$1 AND id=$2`,
		j.TenantID, j.ID, j.Status, techID, start, j.DurationSec)
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, secret, events) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, nullIfEmpty(s.Secret), toJSONB(s.Events))
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, toJSONB([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
		id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

// MigrateDir executes every .sql file in dir in lexical order. Dev
// helper; production deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
