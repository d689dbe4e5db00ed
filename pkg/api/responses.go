package api

import (
	"time"

	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/session"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one component's contribution to the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RunResponse is returned by GET /api/run: the newest session plus the
// live stream counters the dashboard needs to join the event feed.
type RunResponse struct {
	Session     *session.Session `json:"session"`
	LastSeq     int64            `json:"last_seq"`
	Dropped     int64            `json:"dropped_events"`
	Connections int              `json:"connections"`
}

// SessionSummary is one row of GET /api/sessions.
type SessionSummary struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	Status         string    `json:"status"`
	Workdir        string    `json:"workdir"`
	StepsCompleted int       `json:"steps_completed"`
	StepsTotal     int       `json:"steps_total"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionListResponse is returned by GET /api/sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// CheckpointSummary is one row of GET /api/sessions/:id/checkpoints.
// The plan snapshot itself stays on disk; the dashboard lists labels.
type CheckpointSummary struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// EventsResponse is returned by GET /api/events: the buffered window
// (or the slice of it after `since`), oldest first.
type EventsResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq int64          `json:"last_seq"`
}
