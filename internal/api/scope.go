package api

import (
	"database/sql"
	"errors"
	"net/http"

	database "github.com/festiko/gate-backend/internal"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const agentColumns = `id, organizer_id, name, access_code, status, all_events, is_online, last_active_at, scan_count, created_at, updated_at`

// Scope is the set of events an agent may act upon. It is resolved once per
// call and applied identically by the event listing and the check-in engine:
// a ticket must never be checkable through an event the agent cannot list.
//
// Two modes exist: blanket access to every event of the agent's organizer, or
// an explicit per-event allow-list.
type Scope struct {
	allEvents   bool
	organizerID uuid.UUID
	events      map[uuid.UUID]struct{}
}

// resolveScope builds the agent's scope from the given queryer, which may be
// the pool or an open transaction. Inside the check-in transaction it runs
// against the same snapshot as the locked agent row.
func resolveScope(q sqlx.Queryer, agent database.Agent) (Scope, error) {
	if agent.AllEvents {
		return Scope{allEvents: true, organizerID: agent.OrganizerID}, nil
	}
	var ids []uuid.UUID
	err := sqlx.Select(q, &ids, `SELECT event_id FROM agent_event_access WHERE agent_id=$1`, agent.ID)
	if err != nil {
		return Scope{}, err
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Scope{organizerID: agent.OrganizerID, events: set}, nil
}

// Allows reports whether the scope covers an event, identified by its id and
// owning organizer.
func (s Scope) Allows(eventID, eventOrganizerID uuid.UUID) bool {
	if s.allEvents {
		return s.organizerID == eventOrganizerID
	}
	_, ok := s.events[eventID]
	return ok
}

// AllEvents reports whether the scope is organizer-wide.
func (s Scope) AllEvents() bool { return s.allEvents }

// EventIDs returns the explicit allow-list of a restricted scope.
func (s Scope) EventIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	return ids
}

// loadActiveAgent fetches the authenticated agent and enforces the use-time
// status check: a blocked agent fails every call, valid token or not. It
// writes the error response itself and returns ok=false on any failure.
func loadActiveAgent(c *gin.Context) (database.Agent, bool) {
	agentID := c.GetString("agentID")
	var agent database.Agent
	err := database.DB.Get(&agent, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown agent"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return database.Agent{}, false
	}
	if agent.Status != database.AgentStatusActive {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Agent is blocked"})
		return database.Agent{}, false
	}
	return agent, true
}
