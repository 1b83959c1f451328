package database

import (
	"time"

	"github.com/google/uuid"
)

// Agent statuses and scope modes as stored in the 'agents' table.
const (
	AgentStatusActive  = "active"
	AgentStatusBlocked = "blocked"
)

// Booking payment states as stored in the 'bookings' table.
const (
	PaymentStatePaid      = "paid"
	PaymentStateUnpaid    = "unpaid"
	PaymentStateCancelled = "cancelled"
)

// PresenceWindow is how long after its last heartbeat an agent still counts
// as online. Readers must combine is_online with this window; the flag alone
// can be stale.
const PresenceWindow = 120 * time.Second

// Agent represents the 'agents' table: one gate-staff credential issued by an
// organizer. is_online/last_active_at are advisory presence fields and are the
// only columns mutated outside the check-in transaction.
type Agent struct {
	ID           uuid.UUID  `db:"id"`
	OrganizerID  uuid.UUID  `db:"organizer_id"`
	Name         string     `db:"name"`
	AccessCode   string     `db:"access_code"` // stored upper-cased, matched case-insensitively
	Status       string     `db:"status"`      // active | blocked
	AllEvents    bool       `db:"all_events"`  // false => scope comes from agent_event_access
	IsOnline     bool       `db:"is_online"`
	LastActiveAt *time.Time `db:"last_active_at"`
	ScanCount    int64      `db:"scan_count"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Online reports whether the agent counts as online at the given instant.
func (a Agent) Online(now time.Time) bool {
	return a.IsOnline && a.LastActiveAt != nil && now.Sub(*a.LastActiveAt) <= PresenceWindow
}

// AgentEventAccess represents the 'agent_event_access' table: an explicit
// grant of one agent to one event, consulted only when all_events is false.
type AgentEventAccess struct {
	AgentID   uuid.UUID `db:"agent_id"`
	EventID   uuid.UUID `db:"event_id"`
	GrantedAt time.Time `db:"granted_at"`
}

// Event represents the 'events' table. This service never mutates event rows.
type Event struct {
	ID          uuid.UUID `db:"id"`
	OrganizerID uuid.UUID `db:"organizer_id"`
	Title       string    `db:"title"`
	StartsAt    time.Time `db:"starts_at"`
	Location    string    `db:"location"`
	ImageURL    *string   `db:"image_url"`
	CreatedAt   time.Time `db:"created_at"`
}

// Booking represents the 'bookings' table: one purchased ticket, possibly
// covering several seats. The primary key is the code presented at the gate.
// admitted flips false->true at most once; admitted_at is written exactly once
// at that transition and never overwritten.
type Booking struct {
	ID           string     `db:"id"` // the scanned code
	EventID      uuid.UUID  `db:"event_id"`
	BuyerName    string     `db:"buyer_name"`
	BuyerEmail   string     `db:"buyer_email"`
	Quantity     int        `db:"quantity"`
	TierName     string     `db:"tier_name"`
	PaymentState string     `db:"payment_state"` // paid | unpaid | cancelled
	Admitted     bool       `db:"admitted"`
	AdmittedAt   *time.Time `db:"admitted_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// OrganizerAPIKey represents the 'organizer_api_keys' table, used by the
// back-office provisioning endpoints. Only the bcrypt hash is stored.
type OrganizerAPIKey struct {
	ID          uuid.UUID  `db:"id"`
	OrganizerID uuid.UUID  `db:"organizer_id"`
	Name        string     `db:"name"`
	KeyPrefix   string     `db:"key_prefix"`
	HashedKey   string     `db:"hashed_key"`
	LastUsedAt  *time.Time `db:"last_used_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
	RevokedAt   *time.Time `db:"revoked_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
