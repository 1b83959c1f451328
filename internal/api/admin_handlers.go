package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/festiko/gate-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Back-office provisioning for gate agents. Everything here is plain CRUD
// under the organizer bound to the API key; check-in correctness never
// depends on these handlers.

// CreateAgent provisions a new agent and returns its access code. The code is
// shown exactly once; only the organizer sees it.
func CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	organizerID := uuid.MustParse(c.GetString("organizerID"))

	newAgent := database.Agent{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Name:        req.Name,
		Status:      database.AgentStatusActive,
		AllEvents:   req.AllEvents,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	query := `INSERT INTO agents (id, organizer_id, name, access_code, status, all_events, is_online, scan_count, created_at, updated_at)
	          VALUES (:id, :organizer_id, :name, :access_code, :status, :all_events, false, 0, :created_at, :updated_at)`

	// Access codes are unique across organizers; retry a couple of times on
	// the off chance of a collision.
	var accessCode string
	for attempt := 0; ; attempt++ {
		code, err := utils.GenerateAccessCode(8)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate access code"})
			return
		}
		newAgent.AccessCode = code
		if _, err := database.DB.NamedExec(query, newAgent); err != nil {
			if strings.Contains(err.Error(), "unique constraint") && attempt < 2 {
				continue
			}
			log.Printf("create agent: insert failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create agent"})
			return
		}
		accessCode = code
		break
	}

	c.JSON(http.StatusCreated, CreateAgentResponse{
		Agent:      agentSummary(newAgent, time.Now()),
		AccessCode: accessCode,
	})
}

// GetAgents lists the organizer's agents with their computed online state.
func GetAgents(c *gin.Context) {
	organizerID := c.GetString("organizerID")

	var agents []database.Agent
	err := database.DB.Select(&agents, `SELECT `+agentColumns+` FROM agents WHERE organizer_id=$1 ORDER BY created_at DESC`, organizerID)
	if err != nil {
		log.Printf("list agents: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve agents"})
		return
	}

	now := time.Now()
	out := make([]AgentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentSummary(a, now))
	}
	c.JSON(http.StatusOK, out)
}

// UpdateAgentStatus suspends or reactivates an agent. Takes effect on the
// agent's very next call: the check-in path re-reads status under lock.
func UpdateAgentStatus(c *gin.Context) {
	var req UpdateAgentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}
	organizerID := c.GetString("organizerID")

	result, err := database.DB.Exec(`UPDATE agents SET status=$1, updated_at=now() WHERE id=$2 AND organizer_id=$3`, req.Status, agentID, organizerID)
	if err != nil {
		log.Printf("update agent status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update agent"})
		return
	}
	rows, err := result.RowsAffected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check rows affected"})
		return
	}
	if rows == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		return
	}

	PublishAgentStatus(c.Request.Context(), agentID.String(), req.Status)
	c.JSON(http.StatusOK, gin.H{"id": agentID, "status": req.Status})
}

// GrantEventAccess adds one event to a restricted agent's allow-list. The
// event must belong to the organizer; anything else reads as not found so the
// endpoint cannot probe other tenants' events.
func GrantEventAccess(c *gin.Context) {
	var req GrantEventAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}
	organizerID := c.GetString("organizerID")

	var eventOrganizer uuid.UUID
	err = database.DB.Get(&eventOrganizer, `SELECT organizer_id FROM events WHERE id=$1`, req.EventID)
	if err != nil || eventOrganizer.String() != organizerID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			log.Printf("grant access: event lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	var agentOrganizer uuid.UUID
	err = database.DB.Get(&agentOrganizer, `SELECT organizer_id FROM agents WHERE id=$1`, agentID)
	if err != nil || agentOrganizer.String() != organizerID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			log.Printf("grant access: agent lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		return
	}

	_, err = database.DB.Exec(`INSERT INTO agent_event_access (agent_id, event_id, granted_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`, agentID, req.EventID)
	if err != nil {
		log.Printf("grant access: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant access"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent_id": agentID, "event_id": req.EventID})
}

// RevokeEventAccess removes an event from a restricted agent's allow-list.
func RevokeEventAccess(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID format"})
		return
	}
	organizerID := c.GetString("organizerID")

	result, err := database.DB.Exec(`DELETE FROM agent_event_access a USING agents g WHERE a.agent_id=g.id AND a.agent_id=$1 AND a.event_id=$2 AND g.organizer_id=$3`, agentID, eventID, organizerID)
	if err != nil {
		log.Printf("revoke access: delete failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke access"})
		return
	}
	rows, err := result.RowsAffected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check rows affected"})
		return
	}
	if rows == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
