package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/ladder-system/services"
)

type RatingHandler struct {
	ratingService services.RatingService
}

func NewRatingHandler(rs services.RatingService) *RatingHandler {
	return &RatingHandler{ratingService: rs}
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func (h *RatingHandler) TopSingles(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.ratingService.TopSingles(r.Context(), limitParam(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"ratings": ratings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RatingHandler) TopDoubles(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.ratingService.TopDoubles(r.Context(), limitParam(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"ratings": ratings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RatingHandler) TopTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.ratingService.TopTeams(r.Context(), limitParam(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"teams": teams}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
