package services

import "github.com/Dosada05/ladder-system/models"

// RecalcNotifier pushes observable state transitions to interested clients
// (the websocket hub). All calls are best-effort: a notification failure
// never affects the recalculation itself.
type RecalcNotifier interface {
	RecalcStatusChanged(sessionID int, status models.RecalcStatus)
	MatchUpdated(sessionID int, match *models.Match)
}

type noopNotifier struct{}

func (noopNotifier) RecalcStatusChanged(int, models.RecalcStatus) {}
func (noopNotifier) MatchUpdated(int, *models.Match)              {}

// NoopNotifier is used when no hub is wired (tests, CLI tooling).
func NoopNotifier() RecalcNotifier { return noopNotifier{} }
