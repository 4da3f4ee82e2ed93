package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/ladder-system/middleware"
	"github.com/Dosada05/ladder-system/services"
)

type SessionHandler struct {
	sessionService services.SessionService
	matchService   services.MatchService
}

func NewSessionHandler(ss services.SessionService, ms services.MatchService) *SessionHandler {
	return &SessionHandler{
		sessionService: ss,
		matchService:   ms,
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	var input services.CreateSessionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.CreatedBy = currentUserID

	session, err := h.sessionService.Create(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusCreated, jsonResponse{"session": session}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.sessionService.List(r.Context(), limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"sessions": sessions}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session, err := h.sessionService.GetByID(r.Context(), sessionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"session": session}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
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

	if err := h.sessionService.Complete(r.Context(), sessionID, currentUserID, currentUserRole); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusOK, jsonResponse{"message": "session completed"}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) GenerateMatches(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
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

	var input struct {
		PlayerIDs []int `json:"player_ids"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.sessionService.GenerateMatches(r.Context(), sessionID, input.PlayerIDs, currentUserID, currentUserRole)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	err = writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}
