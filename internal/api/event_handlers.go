package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const eventColumns = `id, organizer_id, title, starts_at, location, image_url, created_at`

// eventCounters aggregates admission counters for one event. Both numbers come
// out of a single SELECT so they reflect one snapshot; when q is an open
// transaction they are consistent with that transaction's writes.
func eventCounters(q sqlx.Queryer, eventID uuid.UUID) (EventCounters, error) {
	var row struct {
		TotalAdmissible int64 `db:"total_admissible"`
		TotalAdmitted   int64 `db:"total_admitted"`
	}
	err := sqlx.Get(q, &row, `SELECT COUNT(*) AS total_admissible, COUNT(*) FILTER (WHERE admitted) AS total_admitted FROM bookings WHERE event_id=$1 AND payment_state=$2`, eventID, database.PaymentStatePaid)
	if err != nil {
		return EventCounters{}, err
	}
	return EventCounters{TotalAdmissible: row.TotalAdmissible, TotalAdmitted: row.TotalAdmitted}, nil
}

// ListEvents returns the events in the agent's scope, each with live
// admission counters. Slight staleness between list and detail views is fine;
// the pair of counters per event is still a single snapshot.
func ListEvents(c *gin.Context) {
	agent, ok := loadActiveAgent(c)
	if !ok {
		return
	}

	scope, err := resolveScope(database.DB, agent)
	if err != nil {
		log.Printf("list events: scope resolution failed for agent %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var events []database.Event
	if scope.AllEvents() {
		err = database.DB.Select(&events, `SELECT `+eventColumns+` FROM events WHERE organizer_id=$1 ORDER BY starts_at ASC`, agent.OrganizerID)
	} else if ids := scope.EventIDs(); len(ids) > 0 {
		var query string
		var args []interface{}
		query, args, err = sqlx.In(`SELECT `+eventColumns+` FROM events WHERE id IN (?) ORDER BY starts_at ASC`, ids)
		if err == nil {
			err = database.DB.Select(&events, database.DB.Rebind(query), args...)
		}
	}
	if err != nil {
		log.Printf("list events: query failed for agent %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	summaries := make([]EventSummary, 0, len(events))
	for _, ev := range events {
		counters, err := eventCounters(database.DB, ev.ID)
		if err != nil {
			log.Printf("list events: counters failed for event %s: %v", ev.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		summaries = append(summaries, eventSummary(ev, counters))
	}

	c.JSON(http.StatusOK, ListEventsResponse{Agent: agentSummary(agent, time.Now()), Events: summaries})
}

// GetEvent returns one event with counters. Out-of-scope events yield the same
// opaque denial whether or not bookings exist under them.
func GetEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID format"})
		return
	}

	agent, ok := loadActiveAgent(c)
	if !ok {
		return
	}

	scope, err := resolveScope(database.DB, agent)
	if err != nil {
		log.Printf("get event: scope resolution failed for agent %s: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var ev database.Event
	err = database.DB.Get(&ev, `SELECT `+eventColumns+` FROM events WHERE id=$1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		} else {
			log.Printf("get event: query failed for event %s: %v", eventID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}

	if !scope.Allows(ev.ID, ev.OrganizerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	counters, err := eventCounters(database.DB, ev.ID)
	if err != nil {
		log.Printf("get event: counters failed for event %s: %v", ev.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, eventSummary(ev, counters))
}

func eventSummary(ev database.Event, counters EventCounters) EventSummary {
	return EventSummary{
		ID:       ev.ID,
		Title:    ev.Title,
		StartsAt: ev.StartsAt,
		Location: ev.Location,
		ImageURL: ev.ImageURL,
		Counters: counters,
	}
}
