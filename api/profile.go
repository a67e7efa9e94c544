package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

const maxDisplayName = 64

type ProfileHandler struct {
	repo repository.ProfileRepo
}

func NewProfileHandler(repo repository.ProfileRepo) *ProfileHandler {
	return &ProfileHandler{repo: repo}
}

type profileRequest struct {
	DisplayName *string      `json:"displayName,omitempty"`
	Role        *models.Role `json:"role,omitempty"`
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProfile(r.Context())
	if err != nil {
		logger.Error("get profile", slog.Any("err", err))
		writeError(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	if p == nil {
		writeError(w, "profile not initialized", http.StatusNotFound)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

// CreateProfile creates the profile if none exists and returns the current one either way.
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, 4<<10, &req); err != nil {
			writeError(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	name, ok := cleanName(req.DisplayName)
	if !ok {
		writeError(w, "display name too long", http.StatusBadRequest)
		return
	}
	role := models.RoleMentee
	if req.Role != nil {
		role = *req.Role
	}

	p, err := h.repo.CreateProfileIfAbsent(r.Context(), name, role)
	if err != nil {
		writeRepoError(w, "create profile", err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(w, r, 4<<10, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.DisplayName == nil && req.Role == nil {
		writeError(w, "nothing to update", http.StatusBadRequest)
		return
	}

	var (
		p   *models.UserProfile
		err error
	)
	if req.DisplayName != nil {
		name, ok := cleanName(req.DisplayName)
		if !ok {
			writeError(w, "display name too long", http.StatusBadRequest)
			return
		}
		if p, err = h.repo.UpdateDisplayName(r.Context(), name); err != nil {
			writeRepoError(w, "update display name", err)
			return
		}
	}
	if req.Role != nil {
		if p, err = h.repo.UpdateRole(r.Context(), *req.Role); err != nil {
			writeRepoError(w, "update role", err)
			return
		}
	}
	writeJSON(w, p, http.StatusOK)
}

func cleanName(s *string) (string, bool) {
	if s == nil {
		return "", true
	}
	name := strings.TrimSpace(*s)
	return name, len([]rune(name)) <= maxDisplayName
}

// writeRepoError maps repository sentinels to client errors and logs the rest.
func writeRepoError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNoProfile):
		writeError(w, "profile not initialized", http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidKey), errors.Is(err, repository.ErrInvalidValue):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error(op, slog.Any("err", err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
