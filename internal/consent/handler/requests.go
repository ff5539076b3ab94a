package handler

import (
	"fmt"

	"sanctum/internal/consent/models"
	dErrors "sanctum/pkg/domain-errors"
)

// GrantRequest is the body for granting consent.
type GrantRequest struct {
	Features []string `json:"features"`
}

// Validate rejects empty and unrecognized feature lists before the service
// sees them. Unknown tags are an error, not a skip: a client that sends a
// feature this server does not know about must not silently lose it.
func (r *GrantRequest) Validate() error {
	if len(r.Features) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "features must not be empty")
	}
	if _, badTag, ok := models.ParseFeatureSet(r.Features); !ok {
		return dErrors.New(dErrors.CodeInvalidFeature, fmt.Sprintf("unrecognized feature %q", badTag))
	}
	return nil
}

// FeatureSet returns the parsed feature set. Call only after Validate.
func (r *GrantRequest) FeatureSet() models.FeatureSet {
	set, _, _ := models.ParseFeatureSet(r.Features)
	return set
}

// DenyRequest is the body for denying consent. The reason is optional and
// stored verbatim; it is only ever shown back to its author.
type DenyRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// RevokeRequest is the body for revoking previously granted consent.
type RevokeRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// EvaluateRequest asks for an authoritative consent decision for one feature.
type EvaluateRequest struct {
	Feature string `json:"feature"`
}

func (r *EvaluateRequest) Validate() error {
	if !models.Feature(r.Feature).IsValid() {
		return dErrors.New(dErrors.CodeInvalidFeature, fmt.Sprintf("unrecognized feature %q", r.Feature))
	}
	return nil
}
