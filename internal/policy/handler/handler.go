// Package handler exposes conversation AI settings over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	consentmodels "sanctum/internal/consent/models"
	"sanctum/internal/platform/middleware"
	"sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/httputil"
)

// Service defines the policy operations the handler delegates to.
type Service interface {
	Get(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error)
	Set(ctx context.Context, conversationID id.ConversationID, patch models.Patch) (*models.Policy, error)
}

// Membership guards settings access: only participants may read or change a
// conversation's AI policy.
type Membership interface {
	IsMember(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error)
}

// Handler handles policy endpoints.
type Handler struct {
	logger  *slog.Logger
	policy  Service
	members Membership
}

// New creates a new policy Handler.
func New(policy Service, members Membership, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		policy:  policy,
		members: members,
	}
}

// Register registers the policy routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/conversations/{conversationID}/policy", h.handleGet)
	r.Patch("/conversations/{conversationID}/policy", h.handlePatch)
}

// PatchRequest is a partial settings update. Absent fields are unchanged;
// consent_expiry_days of 0 clears any expiry.
type PatchRequest struct {
	ConsentRule       *string   `json:"consent_rule,omitempty"`
	EnabledFeatures   *[]string `json:"enabled_features,omitempty"`
	ConsentExpiryDays *int      `json:"consent_expiry_days,omitempty"`
}

func (r *PatchRequest) Validate() error {
	if r.ConsentRule != nil && !models.ConsentRule(*r.ConsentRule).IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "consent_rule must be unanimous or majority")
	}
	if r.EnabledFeatures != nil {
		if _, badTag, ok := consentmodels.ParseFeatureSet(*r.EnabledFeatures); !ok {
			return dErrors.New(dErrors.CodeInvalidFeature, "unrecognized feature "+badTag)
		}
	}
	if r.ConsentExpiryDays != nil && *r.ConsentExpiryDays < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "consent_expiry_days must not be negative")
	}
	return nil
}

func (r *PatchRequest) toPatch() models.Patch {
	patch := models.Patch{}
	if r.ConsentRule != nil {
		rule := models.ConsentRule(*r.ConsentRule)
		patch.Rule = &rule
	}
	if r.EnabledFeatures != nil {
		set, _, _ := consentmodels.ParseFeatureSet(*r.EnabledFeatures)
		patch.EnabledFeatures = &set
	}
	if r.ConsentExpiryDays != nil {
		if *r.ConsentExpiryDays == 0 {
			patch.ClearExpiry = true
		} else {
			patch.ConsentExpiryDays = r.ConsentExpiryDays
		}
	}
	return patch
}

// Response is the wire form of a policy.
type Response struct {
	ConversationID    string   `json:"conversation_id"`
	AIAllowed         bool     `json:"ai_allowed"`
	ConsentRule       string   `json:"consent_rule"`
	EnabledFeatures   []string `json:"enabled_features"`
	ConsentExpiryDays *int     `json:"consent_expiry_days,omitempty"`
}

func toResponse(p *models.Policy) Response {
	return Response{
		ConversationID:    p.ConversationID.String(),
		AIAllowed:         p.AIAllowed,
		ConsentRule:       string(p.Rule),
		EnabledFeatures:   p.EnabledFeatures.Strings(),
		ConsentExpiryDays: p.ConsentExpiryDays,
	}
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (id.ConversationID, string, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	conversationID, err := id.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid conversation ID"))
		return id.ConversationID{}, requestID, false
	}

	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.ConversationID{}, requestID, false
	}

	member, err := h.members.IsMember(ctx, conversationID, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check membership",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to check membership"))
		return id.ConversationID{}, requestID, false
	}
	if !member {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotParticipant, "caller is not a participant"))
		return id.ConversationID{}, requestID, false
	}

	return conversationID, requestID, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	policy, err := h.policy.Get(ctx, conversationID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load policy",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toResponse(policy))
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndValidate[PatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	policy, err := h.policy.Set(ctx, conversationID, req.toPatch())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update policy",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toResponse(policy))
}
