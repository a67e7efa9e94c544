package api

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

type ContactsHandler struct {
	contacts  repository.ContactRepo
	snapshots repository.SnapshotRepo
}

func NewContactsHandler(cr repository.ContactRepo, sr repository.SnapshotRepo) *ContactsHandler {
	return &ContactsHandler{contacts: cr, snapshots: sr}
}

// ListContacts returns contacts ordered by most recently seen first.
func (h *ContactsHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	all, err := h.contacts.ListContacts(r.Context())
	if err != nil {
		writeRepoError(w, "list contacts", err)
		return
	}
	out := make([]models.Contact, 0, len(all))
	for _, c := range all {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := lastSeen(out[i]), lastSeen(out[j])
		if a != b {
			return a > b
		}
		return out[i].ID < out[j].ID
	})
	writeJSON(w, out, http.StatusOK)
}

func lastSeen(c models.Contact) int64 {
	if c.LastSeenAt == nil {
		return 0
	}
	return *c.LastSeenAt
}

func (h *ContactsHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.contacts.DeleteContact(r.Context(), id); err != nil {
		writeRepoError(w, "delete contact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContactsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	all, err := h.snapshots.ListSnapshots(r.Context())
	if err != nil {
		writeRepoError(w, "list snapshots", err)
		return
	}
	writeJSON(w, all, http.StatusOK)
}
