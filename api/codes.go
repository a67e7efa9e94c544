package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/garnizeh/triad/internal/exchange"
	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/internal/processor"
	"github.com/garnizeh/triad/internal/qrcode"
	"github.com/garnizeh/triad/pkg/models"
)

// maxCodeText bounds pasted code text; base64url inflates the encoded limit by a third.
const maxCodeText = payload.MaxEncodedSize*4/3 + 64

type CodesHandler struct {
	svc *exchange.Service
}

func NewCodesHandler(svc *exchange.Service) *CodesHandler {
	return &CodesHandler{svc: svc}
}

type codeResponse struct {
	Kind  payload.Kind `json:"kind"`
	Text  string       `json:"text"`
	URL   string       `json:"url"`
	Image string       `json:"image"`
}

type processRequest struct {
	Text string `json:"text"`
}

type processResponse struct {
	processor.Result
	Contact *models.Contact `json:"contact,omitempty"`
}

func (h *CodesHandler) LinkCode(w http.ResponseWriter, r *http.Request) {
	rel, err := models.ParseRelation(r.URL.Query().Get("relation"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	code, err := h.svc.LinkCode(r.Context(), rel)
	writeCode(w, r, code, err)
}

func (h *CodesHandler) SnapshotCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.svc.SnapshotCode(r.Context())
	writeCode(w, r, code, err)
}

// writeCode answers with JSON by default, or the bare PNG when format=png is requested.
func writeCode(w http.ResponseWriter, r *http.Request, code *qrcode.Code, err error) {
	switch {
	case errors.Is(err, exchange.ErrNoProfile):
		writeError(w, "profile not initialized", http.StatusConflict)
		return
	case errors.Is(err, payload.ErrTooLarge):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		logger.Error("render code", slog.Any("err", err))
		writeError(w, "failed to render code", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "png" {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(code.PNG); err != nil {
			logger.Warn("write png", slog.Any("err", err))
		}
		return
	}
	writeJSON(w, codeResponse{
		Kind:  code.Kind,
		Text:  code.Text,
		URL:   payload.URLForm(code.Text),
		Image: code.DataURL(),
	}, http.StatusOK)
}

// Process validates pasted code text. Snapshots are stored; links are only reported.
func (h *CodesHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeBody(w, r, maxCodeText, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ProcessText(r.Context(), req.Text)
	if err != nil {
		logger.Error("process code", slog.Any("err", err))
		writeError(w, "failed to store result", http.StatusInternalServerError)
		return
	}
	writeJSON(w, processResponse{Result: res}, resultStatus(res))
}

// AcceptLink confirms a scanned link code and stores the sender as a contact.
func (h *CodesHandler) AcceptLink(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeBody(w, r, maxCodeText, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	c, res, err := h.svc.AcceptLink(r.Context(), req.Text)
	if err != nil {
		logger.Error("accept link", slog.Any("err", err))
		writeError(w, "failed to store contact", http.StatusInternalServerError)
		return
	}
	writeJSON(w, processResponse{Result: res, Contact: c}, resultStatus(res))
}

func resultStatus(res processor.Result) int {
	if res.Accepted {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}
