package api

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/garnizeh/triad/pkg/repository"
)

type SettingsHandler struct {
	repo repository.SettingsRepo
}

func NewSettingsHandler(repo repository.SettingsRepo) *SettingsHandler {
	return &SettingsHandler{repo: repo}
}

func (h *SettingsHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListSettings(r.Context())
	if err != nil {
		writeRepoError(w, "list settings", err)
		return
	}
	writeJSON(w, all, http.StatusOK)
}

func (h *SettingsHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var v json.RawMessage
	ok, err := h.repo.GetSetting(r.Context(), key, &v)
	if err != nil {
		writeRepoError(w, "get setting", err)
		return
	}
	if !ok {
		writeError(w, "setting not found", http.StatusNotFound)
		return
	}
	writeJSON(w, v, http.StatusOK)
}

// PutSetting stores the request body, any JSON value, under key.
func (h *SettingsHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var v json.RawMessage
	if err := decodeBody(w, r, 16<<10, &v); err != nil || len(v) == 0 {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.repo.SetSetting(r.Context(), key, v); err != nil {
		writeRepoError(w, "set setting", err)
		return
	}
	writeJSON(w, v, http.StatusOK)
}
