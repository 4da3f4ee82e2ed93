package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/ladder-system/middleware"
	"github.com/Dosada05/ladder-system/services"
)

type MatchHandler struct {
	matchService  services.MatchService
	recalcService services.RecalcService
}

func NewMatchHandler(ms services.MatchService, rs services.RecalcService) *MatchHandler {
	return &MatchHandler{
		matchService:  ms,
		recalcService: rs,
	}
}

func (h *MatchHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListBySession(r.Context(), sessionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetEloHistory(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	records, err := h.matchService.GetEloHistory(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"history": records}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EditScore records a new score for a match and triggers a full rating
// recalculation for the session. Returns 409 if another recalculation is
// already running for the same session.
func (h *MatchHandler) EditScore(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}
	currentUserRole, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user role")
		return
	}

	// Счёт декодируется в *int: JSON с дробями или не-числами отклоняется
	// ещё на этапе декодирования.
	var input struct {
		Team1Score *int    `json:"team1_score"`
		Team2Score *int    `json:"team2_score"`
		Reason     *string `json:"reason"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Team1Score == nil || input.Team2Score == nil {
		badRequestResponse(w, r, errors.New("team1_score and team2_score are required"))
		return
	}

	err = h.recalcService.EditMatch(r.Context(), services.EditMatchInput{
		SessionID:  sessionID,
		MatchID:    matchID,
		Team1Score: *input.Team1Score,
		Team2Score: *input.Team2Score,
		Reason:     input.Reason,
		ActingUser: currentUserID,
		ActingRole: currentUserRole,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"message": "match score updated, ratings recalculated"}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}
