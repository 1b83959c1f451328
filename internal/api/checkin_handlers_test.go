package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	database "github.com/festiko/gate-backend/internal"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const agentRowsPattern = `SELECT id, organizer_id, name, access_code, status, all_events`

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	database.DB = sqlx.NewDb(db, "sqlmock")
	return mock
}

func agentColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "organizer_id", "name", "access_code", "status", "all_events", "is_online", "last_active_at", "scan_count", "created_at", "updated_at"})
}

func bookingColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "event_id", "buyer_name", "buyer_email", "quantity", "tier_name", "payment_state", "admitted", "admitted_at", "event_organizer_id"})
}

func countersRows(admissible, admitted int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total_admissible", "total_admitted"}).AddRow(admissible, admitted)
}

func checkinContext(t *testing.T, agentID, orgID uuid.UUID, code string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(CheckInRequest{Code: code})
	c.Request = httptest.NewRequest(http.MethodPost, "/scan/checkin", strings.NewReader(string(body)))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("agentID", agentID.String())
	c.Set("organizerID", orgID.String())
	return w, c
}

func TestCheckIn_Admitted(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	eventID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0001").
		WillReturnRows(bookingColumnsRows().AddRow("TKT-0001", eventID.String(), "Ada", "ada@example.com", 2, "Early Bird", "paid", false, nil, orgID.String()))
	mock.ExpectQuery(`UPDATE bookings SET admitted=true`).WithArgs("TKT-0001").
		WillReturnRows(sqlmock.NewRows([]string{"admitted_at"}).AddRow(now))
	mock.ExpectExec(`UPDATE agents SET scan_count=scan_count\+1`).WithArgs(agentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_admissible`).WithArgs(eventID.String(), database.PaymentStatePaid).
		WillReturnRows(countersRows(2, 1))
	mock.ExpectCommit()

	w, c := checkinContext(t, agentID, orgID, "TKT-0001")
	CheckIn(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp CheckInResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Result != ResultAdmitted {
		t.Fatalf("expected result %q, got %q", ResultAdmitted, resp.Result)
	}
	if resp.Counters.TotalAdmissible != 2 || resp.Counters.TotalAdmitted != 1 {
		t.Fatalf("unexpected counters: %+v", resp.Counters)
	}
	if resp.Booking.AdmittedAt == nil {
		t.Fatal("expected admitted_at to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_AlreadyAdmitted_KeepsOriginalTimestamp(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	eventID := uuid.New()
	now := time.Now()
	original := now.Add(-45 * time.Minute).Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0001").
		WillReturnRows(bookingColumnsRows().AddRow("TKT-0001", eventID.String(), "Ada", "ada@example.com", 2, "Early Bird", "paid", true, original, orgID.String()))
	// No booking mutation: only the agent's presence and scan counter move.
	mock.ExpectExec(`UPDATE agents SET scan_count=scan_count\+1`).WithArgs(agentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_admissible`).WithArgs(eventID.String(), database.PaymentStatePaid).
		WillReturnRows(countersRows(2, 1))
	mock.ExpectCommit()

	w, c := checkinContext(t, agentID, orgID, "TKT-0001")
	CheckIn(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp CheckInResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Result != ResultAlreadyAdmitted {
		t.Fatalf("expected result %q, got %q", ResultAlreadyAdmitted, resp.Result)
	}
	if resp.Booking.AdmittedAt == nil || !resp.Booking.AdmittedAt.Equal(original) {
		t.Fatalf("expected original admission timestamp %v, got %v", original, resp.Booking.AdmittedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_Ineligible_NeverAdmits(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	eventID := uuid.New()
	now := time.Now()

	for _, state := range []string{"unpaid", "cancelled"} {
		mock.ExpectBegin()
		mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
			WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
		mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0003").
			WillReturnRows(bookingColumnsRows().AddRow("TKT-0003", eventID.String(), "Bea", "bea@example.com", 1, "Standard", state, false, nil, orgID.String()))
		mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_admissible`).WithArgs(eventID.String(), database.PaymentStatePaid).
			WillReturnRows(countersRows(2, 1))
		mock.ExpectCommit()

		w, c := checkinContext(t, agentID, orgID, "TKT-0003")
		CheckIn(c)

		if w.Code != http.StatusOK {
			t.Fatalf("state %s: expected 200, got %d: %s", state, w.Code, w.Body.String())
		}
		var resp CheckInResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Result != ResultIneligible {
			t.Fatalf("state %s: expected result %q, got %q", state, ResultIneligible, resp.Result)
		}
		if resp.Booking.AdmittedAt != nil {
			t.Fatalf("state %s: ineligible booking must not carry an admission timestamp", state)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_NotFound(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("NOPE").
		WillReturnRows(bookingColumnsRows())
	mock.ExpectRollback()

	w, c := checkinContext(t, agentID, orgID, "NOPE")
	CheckIn(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_AccessDenied_RestrictedScope(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	eventID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door B", "WXYZ2345", "active", false, true, now, int64(0), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0002").
		WillReturnRows(bookingColumnsRows().AddRow("TKT-0002", eventID.String(), "Cal", "cal@example.com", 1, "Standard", "paid", false, nil, orgID.String()))
	mock.ExpectQuery(`SELECT event_id FROM agent_event_access`).WithArgs(agentID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))
	mock.ExpectRollback()

	w, c := checkinContext(t, agentID, orgID, "TKT-0002")
	CheckIn(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_AccessDenied_WrongOrganizer(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	otherOrg := uuid.New()
	eventID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0009").
		WillReturnRows(bookingColumnsRows().AddRow("TKT-0009", eventID.String(), "Dee", "dee@example.com", 1, "VIP", "paid", false, nil, otherOrg.String()))
	mock.ExpectRollback()

	w, c := checkinContext(t, agentID, orgID, "TKT-0009")
	CheckIn(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_BlockedAgent(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "blocked", true, false, nil, int64(4), now, now))
	mock.ExpectRollback()

	w, c := checkinContext(t, agentID, orgID, "TKT-0001")
	CheckIn(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_Busy_LockTimeout(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(agentRowsPattern+`.+FOR UPDATE`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, true, now, int64(4), now, now))
	mock.ExpectQuery(`FOR UPDATE OF b`).WithArgs("TKT-0001").
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	w, c := checkinContext(t, agentID, orgID, "TKT-0001")
	CheckIn(c)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After header, got %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckIn_EmptyCode(t *testing.T) {
	newMockDB(t)
	w, c := checkinContext(t, uuid.New(), uuid.New(), "   ")
	CheckIn(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
