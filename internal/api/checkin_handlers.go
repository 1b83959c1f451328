package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/festiko/gate-backend/internal/mesh"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// lockedBooking is the booking row joined with its event's owner, as read
// under FOR UPDATE inside the check-in transaction.
type lockedBooking struct {
	ID               string     `db:"id"`
	EventID          uuid.UUID  `db:"event_id"`
	BuyerName        string     `db:"buyer_name"`
	BuyerEmail       string     `db:"buyer_email"`
	Quantity         int        `db:"quantity"`
	TierName         string     `db:"tier_name"`
	PaymentState     string     `db:"payment_state"`
	Admitted         bool       `db:"admitted"`
	AdmittedAt       *time.Time `db:"admitted_at"`
	EventOrganizerID uuid.UUID  `db:"event_organizer_id"`
}

const lockedBookingQuery = `
	SELECT b.id, b.event_id, b.buyer_name, b.buyer_email, b.quantity, b.tier_name,
	       b.payment_state, b.admitted, b.admitted_at, e.organizer_id AS event_organizer_id
	FROM bookings b
	JOIN events e ON e.id = b.event_id
	WHERE b.id = $1
	FOR UPDATE OF b`

// isLockTimeout reports whether err is Postgres lock_not_available, raised
// when lock_timeout expires while waiting on the agent or booking row.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

func lockTimeoutMS() int {
	return parseEnvInt("GATE_LOCK_TIMEOUT_MS", 3000)
}

// CheckIn validates one scanned ticket code and, when eligible, admits it.
//
// The whole operation is a single transaction: the agent row and the booking
// row are taken FOR UPDATE, so concurrent scans of the same code serialize on
// the booking row; exactly one observes admitted=false and performs the
// transition, every later one sees the post-transition state and gets
// already_admitted. The guarantee comes from the store's row locks and holds
// across service instances. Counters in the response are computed inside the
// same transaction as the outcome.
//
// Nothing network-facing runs inside the transaction; the admission event is
// published after commit, fire-and-forget.
func CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty ticket code"})
		return
	}

	ctx, span := otel.Tracer("gate-backend").Start(c.Request.Context(), "checkin")
	defer span.End()
	span.SetAttributes(attribute.String("checkin.code", code))

	agentID := c.GetString("agentID")
	orgLabel := c.GetString("organizerID")

	tx, err := database.DB.BeginTxx(ctx, nil)
	if err != nil {
		log.Printf("checkin: begin failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Bounded lock waits: a scanner stuck behind a lock gets a retryable 503
	// instead of hanging; retries are safe because the operation is idempotent.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeoutMS())); err != nil {
		log.Printf("checkin: set lock_timeout failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// Step 1: lock the agent row and re-validate status. An agent can be
	// blocked between session issuance and this call.
	var agent database.Agent
	err = tx.GetContext(ctx, &agent, `SELECT `+agentColumns+` FROM agents WHERE id=$1 FOR UPDATE`, agentID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown agent"})
		case isLockTimeout(err):
			respondBusy(c, span)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "db_error_agent_lock")
			log.Printf("checkin: agent lock failed for %s: %v", agentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}
	if agent.Status != database.AgentStatusActive {
		RecordCheckinOutcome("agent_blocked", orgLabel)
		c.JSON(http.StatusForbidden, gin.H{"error": "Agent is blocked"})
		return
	}

	// Step 2: lock the booking row, joined with its event.
	var bk lockedBooking
	err = tx.GetContext(ctx, &bk, lockedBookingQuery, code)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			RecordCheckinOutcome("not_found", orgLabel)
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown ticket code"})
		case isLockTimeout(err):
			respondBusy(c, span)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "db_error_booking_lock")
			log.Printf("checkin: booking lock failed for code %q: %v", code, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}

	// Step 3: scope rule, evaluated with this transaction's view of the
	// agent and event. Must mirror the listing path exactly; the denial is
	// opaque so it cannot confirm the event exists.
	scope, err := resolveScope(tx, agent)
	if err != nil {
		span.RecordError(err)
		log.Printf("checkin: scope resolution failed for agent %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !scope.Allows(bk.EventID, bk.EventOrganizerID) {
		RecordCheckinOutcome("access_denied", orgLabel)
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	// Step 4: only paid bookings are admissible.
	if bk.PaymentState != database.PaymentStatePaid {
		counters, err := eventCounters(tx, bk.EventID)
		if err != nil {
			span.RecordError(err)
			log.Printf("checkin: counters failed for event %s: %v", bk.EventID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("checkin: commit failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		committed = true
		span.SetAttributes(attribute.String("checkin.outcome", ResultIneligible))
		RecordCheckinOutcome(ResultIneligible, orgLabel)
		c.JSON(http.StatusOK, CheckInResponse{Result: ResultIneligible, Booking: bookingSummary(bk), Counters: counters})
		return
	}

	// Step 5: duplicate scan. The booking is untouched; the original
	// admission timestamp is returned as-is. The agent's presence and scan
	// counter still move, a duplicate is a real scan at the gate.
	if bk.Admitted {
		if _, err := tx.ExecContext(ctx, `UPDATE agents SET scan_count=scan_count+1, is_online=true, last_active_at=now(), updated_at=now() WHERE id=$1`, agent.ID); err != nil {
			span.RecordError(err)
			log.Printf("checkin: agent update failed for %s: %v", agent.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		counters, err := eventCounters(tx, bk.EventID)
		if err != nil {
			span.RecordError(err)
			log.Printf("checkin: counters failed for event %s: %v", bk.EventID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("checkin: commit failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		committed = true
		span.SetAttributes(attribute.String("checkin.outcome", ResultAlreadyAdmitted))
		RecordCheckinOutcome(ResultAlreadyAdmitted, orgLabel)
		c.JSON(http.StatusOK, CheckInResponse{Result: ResultAlreadyAdmitted, Booking: bookingSummary(bk), Counters: counters})
		return
	}

	// Step 6: the one-way transition. admitted_at is set by the database
	// clock at transition time and never overwritten afterwards.
	var admittedAt time.Time
	err = tx.QueryRowxContext(ctx, `UPDATE bookings SET admitted=true, admitted_at=now() WHERE id=$1 RETURNING admitted_at`, bk.ID).Scan(&admittedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "db_error_admit")
		log.Printf("checkin: admit failed for code %q: %v", bk.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	bk.Admitted = true
	bk.AdmittedAt = &admittedAt

	if _, err := tx.ExecContext(ctx, `UPDATE agents SET scan_count=scan_count+1, is_online=true, last_active_at=now(), updated_at=now() WHERE id=$1`, agent.ID); err != nil {
		span.RecordError(err)
		log.Printf("checkin: agent update failed for %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	counters, err := eventCounters(tx, bk.EventID)
	if err != nil {
		span.RecordError(err)
		log.Printf("checkin: counters failed for event %s: %v", bk.EventID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit_failed")
		log.Printf("checkin: commit failed for code %q: %v", bk.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	committed = true

	span.SetAttributes(attribute.String("checkin.outcome", ResultAdmitted))
	RecordCheckinOutcome(ResultAdmitted, orgLabel)

	// Post-commit only. Dashboards and notifications feed off this; the gate
	// response never waits on them.
	PublishAdmission(ctx, mesh.AdmissionEvent{
		EventID:       bk.EventID.String(),
		BookingID:     bk.ID,
		AgentID:       agent.ID.String(),
		Quantity:      bk.Quantity,
		AdmittedAt:    admittedAt,
		TotalAdmitted: counters.TotalAdmitted,
	})

	c.JSON(http.StatusOK, CheckInResponse{Result: ResultAdmitted, Booking: bookingSummary(bk), Counters: counters})
}

func respondBusy(c *gin.Context, span trace.Span) {
	span.SetStatus(codes.Error, "lock_timeout")
	RecordLockTimeout()
	c.Header("Retry-After", "1")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Gate busy, retry the scan"})
}

func bookingSummary(bk lockedBooking) BookingSummary {
	return BookingSummary{
		Code:         bk.ID,
		EventID:      bk.EventID,
		BuyerName:    bk.BuyerName,
		BuyerEmail:   bk.BuyerEmail,
		Quantity:     bk.Quantity,
		TierName:     bk.TierName,
		PaymentState: bk.PaymentState,
		AdmittedAt:   bk.AdmittedAt,
	}
}
