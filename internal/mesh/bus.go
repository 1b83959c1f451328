package mesh

import (
	"context"
	"encoding/json"
	"time"
)

// Topics published by the check-in path. Publishing always happens after
// commit, fire-and-forget; no subscriber is ever on the transaction's path.
const (
	TopicCheckinAdmitted = "checkin.admitted"
	TopicAgentStatus     = "agent.status"
)

type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
	Close() error
}

// AdmissionEvent is the payload carried on TopicCheckinAdmitted. Downstream
// consumers (organizer dashboards, the notification pipeline) feed off it;
// losing one is harmless because counters are recomputed from bookings.
type AdmissionEvent struct {
	EventID       string    `json:"event_id"`
	BookingID     string    `json:"booking_id"`
	AgentID       string    `json:"agent_id"`
	Quantity      int       `json:"quantity"`
	AdmittedAt    time.Time `json:"admitted_at"`
	TotalAdmitted int64     `json:"total_admitted"`
}
