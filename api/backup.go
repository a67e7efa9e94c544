package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/garnizeh/triad/internal/backup"
	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

const maxBackupBody = 32 << 20

// BackupStore is the store as seen by backup handlers.
type BackupStore interface {
	repository.Replacer
	CreateProfileIfAbsent(ctx context.Context, displayName string, role models.Role) (*models.UserProfile, error)
}

type BackupHandler struct {
	codec *backup.Codec
	store BackupStore
}

func NewBackupHandler(codec *backup.Codec, store BackupStore) *BackupHandler {
	return &BackupHandler{codec: codec, store: store}
}

// Export streams the whole store as a backup document, zstd-compressed when format=zst.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.codec.ExportAll(r.Context())
	if err != nil {
		logger.Error("export backup", slog.Any("err", err))
		writeError(w, "failed to export", http.StatusInternalServerError)
		return
	}

	compress := r.URL.Query().Get("format") == "zst"
	var buf bytes.Buffer
	if err := backup.Encode(&buf, doc, compress); err != nil {
		logger.Error("encode backup", slog.Any("err", err))
		writeError(w, "failed to export", http.StatusInternalServerError)
		return
	}

	name := "triad-backup-" + time.UnixMilli(doc.Timestamp).UTC().Format("20060102-150405") + ".json"
	ctype := "application/json"
	if compress {
		name += ".zst"
		ctype = "application/zstd"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("write backup", slog.Any("err", err))
	}
}

// Import replaces the whole store with the uploaded document, plain or compressed.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupBody)
	doc, err := backup.Decode(r.Body)
	if err != nil {
		writeError(w, "invalid backup: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.codec.ImportAll(r.Context(), doc); err != nil {
		if errors.Is(err, backup.ErrInvalidDocument) || errors.Is(err, backup.ErrUnsupportedVersion) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("import backup", slog.Any("err", err))
		writeError(w, "failed to import", http.StatusInternalServerError)
		return
	}
	if doc.Profile == nil && !h.ensureProfile(r.Context(), w) {
		return
	}
	writeJSON(w, map[string]any{"imported": true, "timestamp": doc.Timestamp}, http.StatusOK)
}

// Reset wipes every collection and starts over with a fresh default profile.
func (h *BackupHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		logger.Error("reset store", slog.Any("err", err))
		writeError(w, "failed to reset", http.StatusInternalServerError)
		return
	}
	if !h.ensureProfile(r.Context(), w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ensureProfile recreates the default profile after the store lost it. It writes
// the error response itself and reports whether the caller may continue.
func (h *BackupHandler) ensureProfile(ctx context.Context, w http.ResponseWriter) bool {
	if _, err := h.store.CreateProfileIfAbsent(ctx, "", models.RoleMentee); err != nil {
		logger.Error("recreate profile", slog.Any("err", err))
		writeError(w, "failed to recreate profile", http.StatusInternalServerError)
		return false
	}
	return true
}
