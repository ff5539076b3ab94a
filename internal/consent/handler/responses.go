package handler

import (
	"time"

	"sanctum/internal/consent/models"
	"sanctum/internal/consent/service"
	"sanctum/internal/evaluator"
	policymodels "sanctum/internal/policy/models"
)

// RecordResponse is the wire form of one participant's consent record.
// DeniedReason is only populated for the caller's own record.
type RecordResponse struct {
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	State           string     `json:"state"`
	AllowedFeatures []string   `json:"allowed_features,omitempty"`
	GrantedAt       *time.Time `json:"granted_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DeniedReason    *string    `json:"denied_reason,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toRecordResponse(rec *models.ConsentRecord, now time.Time) RecordResponse {
	return RecordResponse{
		UserID:          rec.UserID.String(),
		Status:          string(rec.Status),
		State:           string(rec.ComputeState(now)),
		AllowedFeatures: rec.AllowedFeatures.Strings(),
		GrantedAt:       rec.GrantedAt,
		ExpiresAt:       rec.ExpiresAt,
		DeniedReason:    rec.DeniedReason,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// PolicyResponse is the wire form of conversation AI settings.
type PolicyResponse struct {
	ConversationID    string   `json:"conversation_id"`
	AIAllowed         bool     `json:"ai_allowed"`
	ConsentRule       string   `json:"consent_rule"`
	EnabledFeatures   []string `json:"enabled_features"`
	ConsentExpiryDays *int     `json:"consent_expiry_days,omitempty"`
}

func toPolicyResponse(p *policymodels.Policy) PolicyResponse {
	return PolicyResponse{
		ConversationID:    p.ConversationID.String(),
		AIAllowed:         p.AIAllowed,
		ConsentRule:       string(p.Rule),
		EnabledFeatures:   p.EnabledFeatures.Strings(),
		ConsentExpiryDays: p.ConsentExpiryDays,
	}
}

// FeatureStandingResponse aggregates consent for one enabled feature.
// Counts only; never who is withholding.
type FeatureStandingResponse struct {
	Feature       string `json:"feature"`
	GrantingCount int    `json:"granting_count"`
	Satisfied     bool   `json:"satisfied"`
}

// StatusResponse is the full lifecycle view for a conversation.
type StatusResponse struct {
	Policy           PolicyResponse            `json:"policy"`
	Participants     []RecordResponse          `json:"participants"`
	Features         []FeatureStandingResponse `json:"features"`
	ParticipantCount int                       `json:"participant_count"`
	AsOf             time.Time                 `json:"as_of"`
}

func toStatusResponse(status *service.ConversationStatus) StatusResponse {
	resp := StatusResponse{
		Policy:           toPolicyResponse(status.Policy),
		ParticipantCount: status.ParticipantCount,
		AsOf:             status.AsOf,
	}
	for _, rec := range status.Records {
		resp.Participants = append(resp.Participants, toRecordResponse(rec, status.AsOf))
	}
	for _, fs := range status.Features {
		resp.Features = append(resp.Features, FeatureStandingResponse{
			Feature:       string(fs.Feature),
			GrantingCount: fs.GrantingCount,
			Satisfied:     fs.Satisfied,
		})
	}
	return resp
}

// DecisionResponse is the wire form of an authoritative evaluation.
type DecisionResponse struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	Feature          string `json:"feature"`
	ConsentRule      string `json:"consent_rule,omitempty"`
	GrantingCount    int    `json:"granting_count"`
	ParticipantCount int    `json:"participant_count"`
}

func toDecisionResponse(d evaluator.Decision) DecisionResponse {
	return DecisionResponse{
		Allowed:          d.Allowed,
		Reason:           string(d.Reason),
		Feature:          string(d.Feature),
		ConsentRule:      string(d.Rule),
		GrantingCount:    d.GrantingCount,
		ParticipantCount: d.ParticipantCount,
	}
}
