package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

type ActivityHandler struct {
	repo repository.ActivityRepo
}

func NewActivityHandler(repo repository.ActivityRepo) *ActivityHandler {
	return &ActivityHandler{repo: repo}
}

type dayResponse struct {
	Date     string               `json:"date"`
	Record   models.DailyActivity `json:"record"`
	Progress models.DayProgress   `json:"progress"`
}

func newDayResponse(date string, a models.DailyActivity) dayResponse {
	return dayResponse{Date: date, Record: a, Progress: a.Progress(date)}
}

// ListActivity returns every recorded day, oldest first.
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListActivity(r.Context())
	if err != nil {
		writeRepoError(w, "list activity", err)
		return
	}
	out := make([]dayResponse, 0, len(all))
	for date, a := range all {
		out = append(out, newDayResponse(date, a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	writeJSON(w, out, http.StatusOK)
}

func (h *ActivityHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	a, err := h.repo.GetDay(r.Context(), date)
	if err != nil {
		writeRepoError(w, "get day", err)
		return
	}
	writeJSON(w, newDayResponse(date, a), http.StatusOK)
}

func (h *ActivityHandler) ToggleSlot(w http.ResponseWriter, r *http.Request) {
	h.updateSlot(w, r, "toggle slot", h.repo.ToggleSlot)
}

func (h *ActivityHandler) CompleteSlot(w http.ResponseWriter, r *http.Request) {
	h.updateSlot(w, r, "complete slot", h.repo.MarkSlotComplete)
}

func (h *ActivityHandler) updateSlot(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, date string, slot models.Slot) (models.DailyActivity, error)) {
	vars := mux.Vars(r)
	slot, err := models.ParseSlot(vars["slot"])
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := fn(r.Context(), vars["date"], slot)
	if err != nil {
		writeRepoError(w, op, err)
		return
	}
	writeJSON(w, newDayResponse(vars["date"], a), http.StatusOK)
}
