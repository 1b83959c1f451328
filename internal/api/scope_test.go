package api

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	database "github.com/festiko/gate-backend/internal"
	"github.com/google/uuid"
)

func TestScopeAllows_OrganizerWide(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()
	eventID := uuid.New()

	s := Scope{allEvents: true, organizerID: orgID}
	if !s.Allows(eventID, orgID) {
		t.Fatal("organizer-wide scope must allow the organizer's own events")
	}
	if s.Allows(eventID, otherOrg) {
		t.Fatal("organizer-wide scope must not cross tenant boundaries")
	}
}

func TestScopeAllows_Restricted(t *testing.T) {
	orgID := uuid.New()
	granted := uuid.New()
	other := uuid.New()

	s := Scope{organizerID: orgID, events: map[uuid.UUID]struct{}{granted: {}}}
	if !s.Allows(granted, orgID) {
		t.Fatal("restricted scope must allow a granted event")
	}
	if s.Allows(other, orgID) {
		t.Fatal("restricted scope must deny ungranted events even within the tenant")
	}
}

func TestResolveScope_AllEventsSkipsQuery(t *testing.T) {
	mock := newMockDB(t)
	agent := database.Agent{ID: uuid.New(), OrganizerID: uuid.New(), AllEvents: true}

	s, err := resolveScope(database.DB, agent)
	if err != nil {
		t.Fatalf("resolveScope: %v", err)
	}
	if !s.AllEvents() {
		t.Fatal("expected organizer-wide scope")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestResolveScope_RestrictedLoadsGrants(t *testing.T) {
	mock := newMockDB(t)
	agent := database.Agent{ID: uuid.New(), OrganizerID: uuid.New(), AllEvents: false}
	granted := uuid.New()

	mock.ExpectQuery(`SELECT event_id FROM agent_event_access`).WithArgs(agent.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(granted.String()))

	s, err := resolveScope(database.DB, agent)
	if err != nil {
		t.Fatalf("resolveScope: %v", err)
	}
	if s.AllEvents() {
		t.Fatal("expected restricted scope")
	}
	if !s.Allows(granted, agent.OrganizerID) {
		t.Fatal("granted event must be in scope")
	}
	if s.Allows(uuid.New(), agent.OrganizerID) {
		t.Fatal("ungranted event must be out of scope")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
