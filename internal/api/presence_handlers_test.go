package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestHeartbeat(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM agents WHERE id=\$1`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "active", true, false, nil, int64(0), now, now))
	mock.ExpectExec(`UPDATE agents SET is_online=true, last_active_at=now\(\)`).WithArgs(agentID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w, c := authedContext(t, agentID, orgID, "/scan/heartbeat")
	Heartbeat(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHeartbeat_BlockedAgent(t *testing.T) {
	mock := newMockDB(t)
	agentID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM agents WHERE id=\$1`).WithArgs(agentID.String()).
		WillReturnRows(agentColumnsRows().AddRow(agentID.String(), orgID.String(), "Door A", "WXYZ2345", "blocked", true, false, nil, int64(0), now, now))

	w, c := authedContext(t, agentID, orgID, "/scan/heartbeat")
	Heartbeat(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSweepPresence(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectExec(`UPDATE agents SET is_online=false`).WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM agents WHERE is_online`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	sweepPresence()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
