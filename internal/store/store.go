package store

import (
	"context"
	"errors"
	"time"

	"kribdispatch/internal/model"
	"kribdispatch/internal/sched"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Technicians
	CreateTechnician(ctx context.Context, t model.Technician) (model.Technician, error)
	GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error)
	ListTechnicians(ctx context.Context, tenantID, cursor string, limit int) ([]model.Technician, string, error)
	UpdateTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error)
	ArchiveTechnician(ctx context.Context, tenantID, id string) error

	// Jobs
	CreateJob(ctx context.Context, j model.Job) (model.Job, error)
	GetJob(ctx context.Context, tenantID, id string) (model.Job, error)
	ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error)
	UpdateJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error)

	// Snapshot is a consistent read of the scheduling state. Pass
	// technicianIDs to restrict the pool, nil for the whole tenant.
	Snapshot(ctx context.Context, tenantID string, technicianIDs []string) (*sched.Snapshot, error)

	// Placements. Both re-validate against current state and return
	// ErrConflict when the snapshot the caller planned on is stale.
	CommitPlacement(ctx context.Context, tenantID string, req model.CommitRequest, expectVersion int) (model.Technician, model.Job, error)
	ApplyProposal(ctx context.Context, tenantID string, p *model.ScheduleProposal) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")

// ErrConflict means the technician's calendar changed between the
// caller's snapshot read and the write. Callers re-read and retry.
var ErrConflict = errors.New("placement conflict")
