package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenAPIJSON serves an OpenAPI v3 document describing the gate API.
func OpenAPIJSON(c *gin.Context) {
	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Gate API",
			"version":     "1.0.0",
			"description": "Venue check-in for ticketed events: agent sessions, event rosters, atomic ticket validation.",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"apiKeyAuth": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
			"parameters": map[string]any{
				"GateVersion": map[string]any{
					"name": "GATE-Version", "in": "header", "required": false,
					"description": "Optional API version header. Defaults to 2026-09-01.",
					"schema":      map[string]any{"type": "string", "example": "2026-09-01"},
				},
			},
			"schemas": map[string]any{
				"LoginRequest": map[string]any{"type": "object", "required": []string{"access_code"}, "properties": map[string]any{
					"access_code": map[string]any{"type": "string", "example": "WXYZ2345"},
				}},
				"CheckInRequest": map[string]any{"type": "object", "required": []string{"code"}, "properties": map[string]any{
					"code": map[string]any{"type": "string", "description": "Ticket code as scanned or typed."},
				}},
				"CheckInResponse": map[string]any{"type": "object", "properties": map[string]any{
					"result":   map[string]any{"type": "string", "enum": []string{"admitted", "already_admitted", "ineligible"}},
					"booking":  map[string]any{"type": "object"},
					"counters": map[string]any{"$ref": "#/components/schemas/EventCounters"},
				}},
				"EventCounters": map[string]any{"type": "object", "properties": map[string]any{
					"total_admissible": map[string]any{"type": "integer"},
					"total_admitted":   map[string]any{"type": "integer"},
				}},
				"CreateAgentRequest": map[string]any{"type": "object", "required": []string{"name"}, "properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"all_events": map[string]any{"type": "boolean"},
				}},
				"Error": map[string]any{"type": "object", "properties": map[string]any{
					"error": map[string]any{"type": "string"},
				}},
			},
		},
		"paths": map[string]any{
			"/scan/login": map[string]any{"post": map[string]any{
				"summary": "Exchange an access code for a session token",
				"requestBody": map[string]any{"content": map[string]any{"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/LoginRequest"},
				}}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Session token and agent summary"},
					"401": map[string]any{"description": "Invalid access code"},
					"403": map[string]any{"description": "Agent is blocked"},
				},
			}},
			"/scan/events": map[string]any{"get": map[string]any{
				"summary":   "List events in the agent's scope with admission counters",
				"security":  []map[string]any{{"bearerAuth": []string{}}},
				"responses": map[string]any{"200": map[string]any{"description": "Event roster"}},
			}},
			"/scan/events/{eventId}": map[string]any{"get": map[string]any{
				"summary":  "Fetch one event with admission counters",
				"security": []map[string]any{{"bearerAuth": []string{}}},
				"parameters": []map[string]any{{
					"name": "eventId", "in": "path", "required": true,
					"schema": map[string]any{"type": "string", "format": "uuid"},
				}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Event detail"},
					"403": map[string]any{"description": "Out of scope"},
					"404": map[string]any{"description": "No such event"},
				},
			}},
			"/scan/checkin": map[string]any{"post": map[string]any{
				"summary":  "Validate one ticket code and admit it if eligible",
				"security": []map[string]any{{"bearerAuth": []string{}}},
				"requestBody": map[string]any{"content": map[string]any{"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/CheckInRequest"},
				}}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Outcome with counters", "content": map[string]any{"application/json": map[string]any{
						"schema": map[string]any{"$ref": "#/components/schemas/CheckInResponse"},
					}}},
					"403": map[string]any{"description": "Access denied or agent blocked"},
					"404": map[string]any{"description": "Unknown ticket code"},
					"503": map[string]any{"description": "Gate busy, retry the scan"},
				},
			}},
			"/scan/heartbeat": map[string]any{"post": map[string]any{
				"summary":   "Refresh the agent's presence",
				"security":  []map[string]any{{"bearerAuth": []string{}}},
				"responses": map[string]any{"200": map[string]any{"description": "OK"}},
			}},
			"/org/agents": map[string]any{
				"post": map[string]any{
					"summary":  "Provision a gate agent",
					"security": []map[string]any{{"apiKeyAuth": []string{}}},
					"requestBody": map[string]any{"content": map[string]any{"application/json": map[string]any{
						"schema": map[string]any{"$ref": "#/components/schemas/CreateAgentRequest"},
					}}},
					"responses": map[string]any{"201": map[string]any{"description": "Agent with its one-time access code"}},
				},
				"get": map[string]any{
					"summary":   "List the organizer's agents",
					"security":  []map[string]any{{"apiKeyAuth": []string{}}},
					"responses": map[string]any{"200": map[string]any{"description": "Agents"}},
				},
			},
			"/org/agents/{agentId}/status": map[string]any{"patch": map[string]any{
				"summary":  "Block or reactivate an agent",
				"security": []map[string]any{{"apiKeyAuth": []string{}}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Updated"},
					"404": map[string]any{"description": "Agent not found"},
				},
			}},
			"/org/agents/{agentId}/events": map[string]any{"post": map[string]any{
				"summary":   "Grant an agent access to one event",
				"security":  []map[string]any{{"apiKeyAuth": []string{}}},
				"responses": map[string]any{"201": map[string]any{"description": "Granted"}},
			}},
			"/org/agents/{agentId}/events/{eventId}": map[string]any{"delete": map[string]any{
				"summary":   "Revoke an agent's access to one event",
				"security":  []map[string]any{{"apiKeyAuth": []string{}}},
				"responses": map[string]any{"204": map[string]any{"description": "Revoked"}},
			}},
		},
	}
	c.JSON(http.StatusOK, spec)
}
