// Package handler exposes the access controller over HTTP. It is a thin
// layer: authorization itself lives in the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestry/internal/access/models"
	"attestry/internal/transport/http/shared"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
)

// Service defines the access operations the handler needs.
type Service interface {
	AddVerifier(ctx context.Context, identity domain.Identity, label string) (*models.Verifier, error)
	RemoveVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error)
	TransferOwner(ctx context.Context, to domain.Identity) error
	GetVerifier(ctx context.Context, identity domain.Identity) (*models.Verifier, error)
}

type Handler struct {
	access Service
	logger *slog.Logger
}

func New(access Service, logger *slog.Logger) *Handler {
	return &Handler{access: access, logger: logger}
}

// Register mounts the verifier-management routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verifiers", h.handleAddVerifier)
	r.Delete("/verifiers/{identity}", h.handleRemoveVerifier)
	r.Get("/verifiers/{identity}", h.handleGetVerifier)
	r.Post("/owner/transfer", h.handleTransferOwner)
}

type addVerifierRequest struct {
	Identity string `json:"identity"`
	Label    string `json:"label"`
}

type verifierResponse struct {
	Identity  string `json:"identity"`
	Label     string `json:"label"`
	Active    bool   `json:"active"`
	AddedAt   string `json:"added_at"`
	UpdatedAt string `json:"updated_at"`
}

type transferOwnerRequest struct {
	Identity string `json:"identity"`
}

func (h *Handler) handleAddVerifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addVerifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identity, err := domain.ParseIdentity(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	verifier, err := h.access.AddVerifier(ctx, identity, req.Label)
	if err != nil {
		h.logger.WarnContext(ctx, "add verifier failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toVerifierResponse(verifier))
}

func (h *Handler) handleRemoveVerifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := domain.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	verifier, err := h.access.RemoveVerifier(ctx, identity)
	if err != nil {
		h.logger.WarnContext(ctx, "remove verifier failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerifierResponse(verifier))
}

func (h *Handler) handleGetVerifier(w http.ResponseWriter, r *http.Request) {
	identity, err := domain.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	verifier, err := h.access.GetVerifier(r.Context(), identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerifierResponse(verifier))
}

func (h *Handler) handleTransferOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req transferOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to, err := domain.ParseIdentity(req.Identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.access.TransferOwner(ctx, to); err != nil {
		h.logger.WarnContext(ctx, "owner transfer failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toVerifierResponse(v *models.Verifier) verifierResponse {
	return verifierResponse{
		Identity:  v.Identity.String(),
		Label:     v.Label,
		Active:    v.Active,
		AddedAt:   v.AddedAt.UTC().Format(time.RFC3339),
		UpdatedAt: v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
