// Package handler exposes the consent lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sanctum/internal/consent/models"
	"sanctum/internal/consent/service"
	"sanctum/internal/evaluator"
	"sanctum/internal/platform/middleware"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/httputil"
)

// Service defines the consent operations the handler delegates to.
type Service interface {
	Grant(ctx context.Context, conversationID id.ConversationID, userID id.UserID, deviceID id.DeviceID, features models.FeatureSet) (*models.ConsentRecord, error)
	Deny(ctx context.Context, conversationID id.ConversationID, userID id.UserID, deviceID id.DeviceID, reason *string) (*models.ConsentRecord, error)
	Revoke(ctx context.Context, conversationID id.ConversationID, userID id.UserID, reason *string) (*models.ConsentRecord, error)
	Status(ctx context.Context, conversationID id.ConversationID, callerID id.UserID) (*service.ConversationStatus, error)
	Evaluate(ctx context.Context, conversationID id.ConversationID, feature models.Feature) (evaluator.Decision, error)
}

// Handler handles consent lifecycle endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
	now     func() time.Time
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
		now:     time.Now,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/conversations/{conversationID}/consent", h.handleGrant)
	r.Post("/conversations/{conversationID}/consent/deny", h.handleDeny)
	r.Post("/conversations/{conversationID}/consent/revoke", h.handleRevoke)
	r.Get("/conversations/{conversationID}/consent", h.handleStatus)
	r.Post("/conversations/{conversationID}/evaluate", h.handleEvaluate)
}

// requestScope extracts the conversation ID from the URL and the caller's
// identity from the auth context. Shared by every consent endpoint.
func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (id.ConversationID, id.UserID, string, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	conversationID, err := id.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid conversation ID"))
		return id.ConversationID{}, id.UserID{}, requestID, false
	}

	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.ConversationID{}, id.UserID{}, requestID, false
	}

	return conversationID, userID, requestID, true
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndValidate[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.consent.Grant(ctx, conversationID, userID, middleware.GetDeviceID(ctx), req.FeatureSet())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to grant consent",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, h.now()))
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeJSON[DenyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.consent.Deny(ctx, conversationID, userID, middleware.GetDeviceID(ctx), req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to deny consent",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, h.now()))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeJSON[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.consent.Revoke(ctx, conversationID, userID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke consent",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, h.now()))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	status, err := h.consent.Status(ctx, conversationID, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load consent status",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

// handleEvaluate is the authoritative pre-access check. A denial is a normal
// 200 response with allowed=false, not an HTTP error.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, _, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndValidate[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decision, err := h.consent.Evaluate(ctx, conversationID, models.Feature(req.Feature))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to evaluate consent",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(decision))
}
