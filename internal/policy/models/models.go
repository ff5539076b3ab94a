package models

import (
	"time"

	consent "sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ConsentRule selects how participant consent is combined into a
// conversation-level authorization. An enum rather than a boolean leaves room
// for future rules (e.g. quorum-N) without changing evaluator signatures.
type ConsentRule string

const (
	RuleUnanimous ConsentRule = "unanimous"
	RuleMajority  ConsentRule = "majority"
)

// IsValid checks if the rule is one of the supported enum values.
func (r ConsentRule) IsValid() bool {
	return r == RuleUnanimous || r == RuleMajority
}

// Satisfied reports whether the granting count meets the rule's threshold.
// Zero participants never satisfies any rule: a conversation nobody is in
// must not authorize AI access, even though unanimity over an empty set
// would vacuously hold.
func (r ConsentRule) Satisfied(granting, participants int) bool {
	if participants <= 0 {
		return false
	}
	switch r {
	case RuleMajority:
		// Strict majority; ties deny.
		return granting*2 > participants
	default:
		// Unanimous: every participant, no exceptions. A participant who has
		// never responded counts as non-granting.
		return granting == participants
	}
}

// Policy holds per-conversation AI settings. AIAllowed is a denormalized
// cache of the evaluator's output at the last grant/revoke; the evaluator is
// always free to recompute from first principles for any single feature.
type Policy struct {
	ConversationID    id.ConversationID
	AIAllowed         bool
	Rule              ConsentRule
	EnabledFeatures   consent.FeatureSet
	ConsentExpiryDays *int
	UpdatedAt         time.Time
}

// Default returns the implicit policy for a conversation with no stored row:
// AI disabled, unanimous consent, mention responses only.
func Default(conversationID id.ConversationID) *Policy {
	return &Policy{
		ConversationID:  conversationID,
		AIAllowed:       false,
		Rule:            RuleUnanimous,
		EnabledFeatures: consent.NewFeatureSet(consent.FeatureMentionResponse),
	}
}

// Validate enforces policy invariants before persistence.
func (p *Policy) Validate() error {
	if p.ConversationID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "conversation ID required")
	}
	if !p.Rule.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid consent rule")
	}
	for _, f := range p.EnabledFeatures {
		if !f.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid enabled feature")
		}
	}
	if p.ConsentExpiryDays != nil && *p.ConsentExpiryDays <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent expiry days must be positive")
	}
	return nil
}

// ExpiryFor derives the consent expiry timestamp for a grant made at the
// given time, or nil when the policy does not time-limit consent.
func (p *Policy) ExpiryFor(grantedAt time.Time) *time.Time {
	if p.ConsentExpiryDays == nil {
		return nil
	}
	expiry := grantedAt.Add(time.Duration(*p.ConsentExpiryDays) * 24 * time.Hour)
	return &expiry
}

// Patch is a partial policy update. Nil fields are left unchanged.
// Patching settings never re-runs evaluation; recompute is a separate step.
type Patch struct {
	Rule              *ConsentRule
	EnabledFeatures   *consent.FeatureSet
	ConsentExpiryDays *int
	ClearExpiry       bool
}

// Apply merges the patch into the policy.
func (p *Policy) Apply(patch Patch) {
	if patch.Rule != nil {
		p.Rule = *patch.Rule
	}
	if patch.EnabledFeatures != nil {
		p.EnabledFeatures = *patch.EnabledFeatures
	}
	if patch.ClearExpiry {
		p.ConsentExpiryDays = nil
	} else if patch.ConsentExpiryDays != nil {
		p.ConsentExpiryDays = patch.ConsentExpiryDays
	}
}
