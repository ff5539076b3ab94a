// Package handler exposes the access log over HTTP: appending audit entries
// after an authorized access, and reading a conversation's trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sanctum/internal/accesslog"
	consentmodels "sanctum/internal/consent/models"
	"sanctum/internal/platform/middleware"
	"sanctum/pkg/contenthash"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/httputil"
)

const defaultListLimit = 50

// Recorder defines the access log operations the handler delegates to.
type Recorder interface {
	Record(ctx context.Context, entry *accesslog.Entry) (*accesslog.Entry, error)
	List(ctx context.Context, conversationID id.ConversationID, limit int) ([]*accesslog.Entry, error)
}

// Membership guards reads: only participants may inspect a conversation's trail.
type Membership interface {
	IsMember(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error)
}

// Handler handles access log endpoints.
type Handler struct {
	logger  *slog.Logger
	records Recorder
	members Membership
}

// New creates a new access log Handler.
func New(records Recorder, members Membership, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		records: records,
		members: members,
	}
}

// Register registers the access log routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/conversations/{conversationID}/access-log", h.handleRecord)
	r.Get("/conversations/{conversationID}/access-log", h.handleList)
}

// RecordRequest is the body for appending one audit entry. ContentHash is a
// digest of the accessed plaintext; the plaintext itself never crosses this API.
type RecordRequest struct {
	MessageID   *string `json:"message_id,omitempty"`
	Feature     string  `json:"feature"`
	ContentHash string  `json:"content_hash"`
	AIModel     string  `json:"ai_model"`
}

func (r *RecordRequest) Validate() error {
	if !consentmodels.Feature(r.Feature).IsValid() {
		return dErrors.New(dErrors.CodeInvalidFeature, "unrecognized feature "+r.Feature)
	}
	if !contenthash.Valid(r.ContentHash) {
		return dErrors.New(dErrors.CodeInvalidInput, "content_hash must be a hex digest")
	}
	if r.AIModel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "ai_model required")
	}
	return nil
}

// EntryResponse is the wire form of one audit entry.
type EntryResponse struct {
	ID                  string    `json:"id"`
	ConversationID      string    `json:"conversation_id"`
	MessageID           *string   `json:"message_id,omitempty"`
	AuthorizingUserID   string    `json:"authorizing_user_id"`
	AuthorizingDeviceID string    `json:"authorizing_device_id,omitempty"`
	Feature             string    `json:"feature"`
	ContentHash         string    `json:"content_hash"`
	AIModel             string    `json:"ai_model"`
	AccessedAt          time.Time `json:"accessed_at"`
}

func toEntryResponse(e *accesslog.Entry) EntryResponse {
	resp := EntryResponse{
		ID:                  e.ID.String(),
		ConversationID:      e.ConversationID.String(),
		AuthorizingUserID:   e.AuthorizingUserID.String(),
		AuthorizingDeviceID: string(e.AuthorizingDeviceID),
		Feature:             string(e.Feature),
		ContentHash:         e.ContentHash,
		AIModel:             e.AIModel,
		AccessedAt:          e.AccessedAt,
	}
	if e.MessageID != nil {
		s := e.MessageID.String()
		resp.MessageID = &s
	}
	return resp
}

// ListResponse wraps a conversation's audit trail, newest first.
type ListResponse struct {
	Entries []EntryResponse `json:"entries"`
}

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

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndValidate[RecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry := &accesslog.Entry{
		ConversationID:      conversationID,
		AuthorizingUserID:   userID,
		AuthorizingDeviceID: middleware.GetDeviceID(ctx),
		Feature:             consentmodels.Feature(req.Feature),
		ContentHash:         req.ContentHash,
		AIModel:             req.AIModel,
	}
	if req.MessageID != nil {
		messageID, err := id.ParseMessageID(*req.MessageID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message ID"))
			return
		}
		entry.MessageID = &messageID
	}

	recorded, err := h.records.Record(ctx, entry)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record access log entry",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toEntryResponse(recorded))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, userID, requestID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	member, err := h.members.IsMember(ctx, conversationID, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check membership",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to check membership"))
		return
	}
	if !member {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotParticipant, "caller is not a participant"))
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.records.List(ctx, conversationID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list access log entries",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
