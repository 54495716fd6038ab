package frontend

import (
	"time"

	"github.com/BranchIntl/gobroker/core"
)

// SubmitRequest is the body of POST /requests. Either Text, parsed like a
// chat message, or Prompt with explicit options.
type SubmitRequest struct {
	Text   string   `json:"text" validate:"required_without=Prompt,max=2000"`
	Prompt string   `json:"prompt" validate:"required_without=Text,max=2000"`
	CFG    *float64 `json:"cfg,omitempty" validate:"omitempty,gte=0,lte=50"`
	Steps  *int     `json:"steps,omitempty" validate:"omitempty,gte=1,lte=500"`
}

// generation is the request after parsing, checked again because text
// options bypass the DTO bounds
type generation struct {
	Prompt string  `validate:"required,max=2000"`
	CFG    float64 `validate:"gte=0,lte=50"`
	Steps  int     `validate:"gte=1,lte=500"`
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	Queued               int     `json:"queued"`
	Ready                int     `json:"ready"`
	Pending              int     `json:"pending"`
	OldestPendingSeconds float64 `json:"oldest_pending_seconds"`
	Taken                string  `json:"taken"`
}

func newStatsResponse(s core.Snapshot) StatsResponse {
	return StatsResponse{
		Queued:               s.Queued,
		Ready:                s.Ready,
		Pending:              s.Pending,
		OldestPendingSeconds: s.OldestPending.Seconds(),
		Taken:                s.Taken.Format(time.RFC3339),
	}
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Healthy    bool          `json:"healthy"`
	Transport  string        `json:"transport,omitempty"`
	Statistics string        `json:"statistics,omitempty"`
	Stats      StatsResponse `json:"stats"`
}

func newHealthResponse(h core.HealthStatus) HealthResponse {
	resp := HealthResponse{Healthy: h.Healthy, Stats: newStatsResponse(h.Snapshot)}
	if h.TransportHealth != nil {
		resp.Transport = h.TransportHealth.Error()
	}
	if h.StatsHealth != nil {
		resp.Statistics = h.StatsHealth.Error()
	}
	return resp
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
