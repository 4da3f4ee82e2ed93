package models

import "time"

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// RecalcStatus is the per-session recalculation state machine:
// null -> idle -> running -> {done, failed}, with {done, failed} -> running
// on subsequent edits. Transition into running is a conditional update
// guarded by a fresh token (see SessionRepository.TryStartRecalc).
type RecalcStatus string

const (
	RecalcStatusIdle    RecalcStatus = "idle"
	RecalcStatusRunning RecalcStatus = "running"
	RecalcStatusDone    RecalcStatus = "done"
	RecalcStatusFailed  RecalcStatus = "failed"
)

type Session struct {
	ID               int           `json:"id"`
	Name             string        `json:"name"`
	CreatedBy        int           `json:"created_by"`
	Status           SessionStatus `json:"status"`
	RecalcStatus     *RecalcStatus `json:"recalc_status,omitempty"`
	RecalcToken      *string       `json:"-"`
	RecalcStartedAt  *time.Time    `json:"recalc_started_at,omitempty"`
	RecalcFinishedAt *time.Time    `json:"recalc_finished_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}
