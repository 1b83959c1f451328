package api

import (
	"time"

	"github.com/google/uuid"
)

// Check-in results carried in the "result" field of a 200 response. A re-scan
// of an admitted ticket and a scan of an unpaid one are expected outcomes the
// scanner renders distinctly, not transport errors.
const (
	ResultAdmitted        = "admitted"
	ResultAlreadyAdmitted = "already_admitted"
	ResultIneligible      = "ineligible"
)

// LoginRequest is the scan-app login body. Access codes match
// case-insensitively; normalization happens server-side.
type LoginRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
}

// AgentSummary is the agent as returned to the scan app and the back office.
// The access code never appears here.
type AgentSummary struct {
	ID          uuid.UUID `json:"id"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	AllEvents   bool      `json:"all_events"`
	Online      bool      `json:"online"`
	ScanCount   int64     `json:"scan_count"`
}

// LoginResponse carries the session token plus the agent it identifies.
type LoginResponse struct {
	Token string       `json:"token"`
	Agent AgentSummary `json:"agent"`
}

// EventCounters are the per-event admission aggregates. Both numbers always
// come from one snapshot query so they can never straddle a concurrent
// check-in.
type EventCounters struct {
	TotalAdmissible int64 `json:"total_admissible"`
	TotalAdmitted   int64 `json:"total_admitted"`
}

// EventSummary is one event in the agent's scope, annotated with counters.
type EventSummary struct {
	ID       uuid.UUID     `json:"id"`
	Title    string        `json:"title"`
	StartsAt time.Time     `json:"starts_at"`
	Location string        `json:"location"`
	ImageURL *string       `json:"image_url,omitempty"`
	Counters EventCounters `json:"counters"`
}

// ListEventsResponse is the scan app's home screen payload.
type ListEventsResponse struct {
	Agent  AgentSummary   `json:"agent"`
	Events []EventSummary `json:"events"`
}

// CheckInRequest carries one scanned ticket code.
type CheckInRequest struct {
	Code string `json:"code" binding:"required"`
}

// BookingSummary is the booking as shown to gate staff after a scan.
type BookingSummary struct {
	Code         string     `json:"code"`
	EventID      uuid.UUID  `json:"event_id"`
	BuyerName    string     `json:"buyer_name"`
	BuyerEmail   string     `json:"buyer_email"`
	Quantity     int        `json:"quantity"`
	TierName     string     `json:"tier_name"`
	PaymentState string     `json:"payment_state"`
	AdmittedAt   *time.Time `json:"admitted_at,omitempty"`
}

// CheckInResponse is returned for every terminal scan outcome that may show
// booking details (admitted, already_admitted, ineligible). Counters are
// computed inside the same transaction as the outcome.
type CheckInResponse struct {
	Result   string         `json:"result"`
	Booking  BookingSummary `json:"booking"`
	Counters EventCounters  `json:"counters"`
}

// CreateAgentRequest provisions a new gate agent for the organizer bound to
// the API key.
type CreateAgentRequest struct {
	Name      string `json:"name" binding:"required"`
	AllEvents bool   `json:"all_events"`
}

// CreateAgentResponse includes the generated access code. This is the only
// place the code is ever returned.
type CreateAgentResponse struct {
	Agent      AgentSummary `json:"agent"`
	AccessCode string       `json:"access_code"`
}

// UpdateAgentStatusRequest suspends or reactivates an agent.
type UpdateAgentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active blocked"`
}

// GrantEventAccessRequest adds one event to a restricted agent's allow-list.
type GrantEventAccessRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
}
