package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/ladder-system/middleware"
	"github.com/Dosada05/ladder-system/services"
)

const maxAvatarSize = 5 << 20 // 5MB

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(us services.UserService) *UserHandler {
	return &UserHandler{
		userService: us,
	}
}

func (h *UserHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	requestedUserID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.GetByID(r.Context(), requestedUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	user.PasswordHash = ""

	response := jsonResponse{
		"user": user,
	}

	err = writeJSON(w, http.StatusOK, response, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	user, err := h.userService.GetByID(r.Context(), currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	user.PasswordHash = ""

	err = writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadAvatar принимает multipart-форму с полем "avatar".
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		badRequestResponse(w, r, errors.New("avatar file is too large or form is malformed"))
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		badRequestResponse(w, r, errors.New("avatar file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		badRequestResponse(w, r, errors.New("avatar must be a jpeg, png or webp image"))
		return
	}

	user, err := h.userService.UploadAvatar(r.Context(), currentUserID, contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	user.PasswordHash = ""

	err = writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}
