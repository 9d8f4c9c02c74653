package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"kribdispatch/internal/store"
)

// Event types emitted by the scheduling API.
const (
	EventSlotCommitted      = "slot.committed"
	EventProposalApplied    = "proposal.applied"
	EventJobRescheduled     = "job.rescheduled"
	EventJobManualReview    = "job.manual_review"
	EventDisruptionReceived = "disruption.received"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per matching subscription. Delivery is
// asynchronous; enqueue failures are dropped rather than failing the
// request that triggered the event.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.New().String(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
