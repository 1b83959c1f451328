package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// Heartbeat refreshes the agent's presence fields. Best effort by design:
// no transaction, no locks, and a lost or out-of-order write is harmless.
// Presence lives entirely outside the admission locking regime.
func Heartbeat(c *gin.Context) {
	agent, ok := loadActiveAgent(c)
	if !ok {
		return
	}
	if _, err := database.DB.Exec(`UPDATE agents SET is_online=true, last_active_at=now(), updated_at=now() WHERE id=$1`, agent.ID); err != nil {
		log.Printf("heartbeat: update failed for agent %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var presenceOnce sync.Once

// StartPresenceSweeper runs a minutely job that clears is_online for agents
// whose last heartbeat fell out of the freshness window, and refreshes the
// online-agents gauge. Racing a concurrent heartbeat is fine; the flag is
// advisory and the next heartbeat sets it again.
func StartPresenceSweeper() {
	presenceOnce.Do(func() {
		sched := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
		_, err := sched.AddFunc("* * * * *", sweepPresence)
		if err != nil {
			log.Printf("presence sweeper: schedule failed: %v", err)
			return
		}
		sched.Start()
	})
}

func sweepPresence() {
	cutoff := time.Now().Add(-database.PresenceWindow)
	if _, err := database.DB.Exec(`UPDATE agents SET is_online=false WHERE is_online AND (last_active_at IS NULL OR last_active_at < $1)`, cutoff); err != nil {
		log.Printf("presence sweeper: sweep failed: %v", err)
		return
	}
	var online int64
	if err := database.DB.Get(&online, `SELECT COUNT(*) FROM agents WHERE is_online AND last_active_at >= $1`, cutoff); err != nil {
		log.Printf("presence sweeper: count failed: %v", err)
		return
	}
	SetAgentsOnline(online)
}
