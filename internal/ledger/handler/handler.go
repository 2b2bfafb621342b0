// Package handler exposes the document ledger over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestry/internal/ledger/models"
	"attestry/internal/transport/http/shared"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
)

// Service defines the ledger operations the handler needs.
type Service interface {
	Register(ctx context.Context, fp domain.Fingerprint, metadata string) (*models.Document, error)
	Adjudicate(ctx context.Context, fp domain.Fingerprint, decision models.Status, reason string) (*models.Document, error)
	GetDocument(ctx context.Context, fp domain.Fingerprint) (*models.Document, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error)
	ListAll(ctx context.Context) ([]domain.Fingerprint, error)
	Stats(ctx context.Context) (models.Stats, error)
}

type Handler struct {
	ledger Service
	logger *slog.Logger
}

func New(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// Register mounts the document routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.handleRegister)
	r.Post("/documents/{fingerprint}/adjudicate", h.handleAdjudicate)
	r.Get("/documents/{fingerprint}", h.handleGetDocument)
	r.Get("/documents", h.handleListDocuments)
	r.Get("/stats", h.handleStats)
}

type registerRequest struct {
	Fingerprint string `json:"fingerprint"`
	Metadata    string `json:"metadata"`
}

type adjudicateRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type documentResponse struct {
	Fingerprint     string `json:"fingerprint"`
	Owner           string `json:"owner"`
	Metadata        string `json:"metadata,omitempty"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	SubmittedAt     string `json:"submitted_at"`
	ExpiresAt       string `json:"expires_at"`
	DecidedBy       string `json:"decided_by,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type listResponse struct {
	Fingerprints []string `json:"fingerprints"`
	Count        int      `json:"count"`
}

type statsResponse struct {
	Pending        int `json:"pending"`
	Verified       int `json:"verified"`
	Rejected       int `json:"rejected"`
	Total          int `json:"total"`
	ExpiredPending int `json:"expired_pending"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	fp, err := domain.ParseFingerprint(req.Fingerprint)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.ledger.Register(ctx, fp, req.Metadata)
	if err != nil {
		h.logger.WarnContext(ctx, "register document failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDocumentResponse(doc, requestcontext.Now(ctx)))
}

func (h *Handler) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req adjudicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.ledger.Adjudicate(ctx, fp, decision, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "adjudicate document failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc, requestcontext.Now(ctx)))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.ledger.GetDocument(r.Context(), fp)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc, requestcontext.Now(r.Context())))
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		fps []domain.Fingerprint
		err error
	)
	if raw := r.URL.Query().Get("owner"); raw != "" {
		var owner domain.Identity
		if owner, err = domain.ParseIdentity(raw); err != nil {
			shared.WriteError(w, err)
			return
		}
		fps, err = h.ledger.ListByOwner(ctx, owner)
	} else {
		fps, err = h.ledger.ListAll(ctx)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := listResponse{Fingerprints: make([]string, 0, len(fps))}
	for _, fp := range fps {
		out.Fingerprints = append(out.Fingerprints, fp.String())
	}
	out.Count = len(out.Fingerprints)
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, statsResponse{
		Pending:        stats.Pending,
		Verified:       stats.Verified,
		Rejected:       stats.Rejected,
		Total:          stats.Total,
		ExpiredPending: stats.ExpiredPending,
	})
}

func toDocumentResponse(doc *models.Document, now time.Time) documentResponse {
	out := documentResponse{
		Fingerprint:     doc.Fingerprint.String(),
		Owner:           doc.Owner.String(),
		Metadata:        doc.Metadata,
		Status:          string(doc.Status),
		EffectiveStatus: string(doc.EffectiveStatus(now)),
		SubmittedAt:     doc.SubmittedAt.UTC().Format(time.RFC3339),
		ExpiresAt:       doc.ExpiresAt.UTC().Format(time.RFC3339),
		RejectionReason: doc.RejectionReason,
	}
	if !doc.DecidedBy.IsZero() {
		out.DecidedBy = doc.DecidedBy.String()
	}
	return out
}
