// Package evaluator answers "is feature F authorized right now in
// conversation C?" as a pure function over the conversation's policy, its
// consent records, and the live participant count.
//
// The evaluator never touches storage and never fails for "not enough
// consent" - a denial is a valid negative result, not an error. Callers that
// cannot load the inputs must fail closed and treat the evaluation as a
// denial rather than defaulting to allow.
package evaluator

import (
	"time"

	consent "sanctum/internal/consent/models"
	policy "sanctum/internal/policy/models"
)

// Reason classifies a denial so the UI can explain why AI is unavailable
// without exposing any individual participant's private denial reason.
type Reason string

const (
	ReasonAllowed             Reason = "allowed"
	ReasonAIDisabled          Reason = "ai_disabled"
	ReasonFeatureNotEnabled   Reason = "feature_not_enabled"
	ReasonNoParticipants      Reason = "no_participants"
	ReasonInsufficientConsent Reason = "insufficient_consent"
)

// Decision is the structured outcome of an evaluation. Counts are aggregate
// only: they disclose how many participants are granting, never who.
type Decision struct {
	Allowed          bool
	Reason           Reason
	Feature          consent.Feature
	Rule             policy.ConsentRule
	GrantingCount    int
	ParticipantCount int
}

// Tally counts records that actively grant the feature at the given time:
// status granted, feature in the allowed set, and not past expiry. Expired
// grants are excluded without mutating the stored record (lazy expiry).
func Tally(records []*consent.ConsentRecord, feature consent.Feature, now time.Time) int {
	count := 0
	for _, r := range records {
		if r != nil && r.IsGranting(feature, now) {
			count++
		}
	}
	return count
}

// Evaluate performs the authoritative check, recomputing from first
// principles and ignoring the cached aiAllowed flag. A nil policy means the
// conversation never opted into AI and always denies.
func Evaluate(p *policy.Policy, records []*consent.ConsentRecord, participantCount int, feature consent.Feature, now time.Time) Decision {
	decision := Decision{
		Feature:          feature,
		ParticipantCount: participantCount,
	}
	if p == nil {
		decision.Reason = ReasonAIDisabled
		return decision
	}
	decision.Rule = p.Rule

	if !p.EnabledFeatures.Contains(feature) {
		decision.Reason = ReasonFeatureNotEnabled
		return decision
	}

	// A conversation with zero participants denies by construction. Without
	// this guard, unanimity over an empty set would vacuously allow.
	if participantCount <= 0 {
		decision.Reason = ReasonNoParticipants
		return decision
	}

	decision.GrantingCount = Tally(records, feature, now)
	if !p.Rule.Satisfied(decision.GrantingCount, participantCount) {
		decision.Reason = ReasonInsufficientConsent
		return decision
	}

	decision.Allowed = true
	decision.Reason = ReasonAllowed
	return decision
}
