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
)

// LoginAgent exchanges an access code for a session token. The code is
// matched case-insensitively. A blocked agent is told it is blocked (the scan
// app shows a "contact your organizer" screen) but gets no token.
func LoginAgent(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))

	var agent database.Agent
	err := database.DB.Get(&agent, `SELECT `+agentColumns+` FROM agents WHERE access_code=$1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access code"})
		} else {
			log.Printf("login: lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}

	if agent.Status != database.AgentStatusActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Agent is blocked"})
		return
	}

	// Presence is advisory; a lost update here is acceptable and no
	// transaction is taken.
	now := time.Now()
	if _, err := database.DB.Exec(`UPDATE agents SET is_online=true, last_active_at=$1, updated_at=$1 WHERE id=$2`, now, agent.ID); err != nil {
		log.Printf("login: presence update failed for agent %s: %v", agent.ID, err)
	}
	agent.IsOnline = true
	agent.LastActiveAt = &now

	token, err := utils.GenerateAgentJWT(agent.ID, agent.OrganizerID)
	if err != nil {
		log.Printf("login: token generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Agent: agentSummary(agent, now)})
}

func agentSummary(agent database.Agent, now time.Time) AgentSummary {
	return AgentSummary{
		ID:          agent.ID,
		OrganizerID: agent.OrganizerID,
		Name:        agent.Name,
		Status:      agent.Status,
		AllEvents:   agent.AllEvents,
		Online:      agent.Online(now),
		ScanCount:   agent.ScanCount,
	}
}
