package api

import (
	"context"
	"encoding/json"

	"github.com/festiko/gate-backend/internal/mesh"
)

var bus mesh.Bus

func SetBus(b mesh.Bus) { bus = b }

// PublishAdmission announces a fresh admission on the mesh. Called strictly
// after commit; failures are ignored, subscribers recompute from the store.
func PublishAdmission(ctx context.Context, ev mesh.AdmissionEvent) {
	if bus == nil {
		return
	}
	payload, _ := json.Marshal(ev)
	_ = bus.Publish(ctx, mesh.Event{Topic: mesh.TopicCheckinAdmitted, Payload: payload})
}

// PublishAgentStatus announces a status flip (active/blocked) so scan apps
// with an open session can drop to the lock screen early.
func PublishAgentStatus(ctx context.Context, agentID, status string) {
	if bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"agent_id": agentID, "status": status})
	_ = bus.Publish(ctx, mesh.Event{Topic: mesh.TopicAgentStatus, Payload: payload})
}
