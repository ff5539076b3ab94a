package service

import (
	"time"

	"sanctum/internal/consent/models"
	policymodels "sanctum/internal/policy/models"
)

// ConversationStatus is the lifecycle view of a conversation for display:
// every participant's record (pending defaults filled in), the effective
// policy, and per-feature aggregate standing.
type ConversationStatus struct {
	Policy           *policymodels.Policy
	Records          []*models.ConsentRecord
	Features         []FeatureStanding
	ParticipantCount int
	AsOf             time.Time
}

// FeatureStanding aggregates consent for one enabled feature. Counts only;
// it never discloses which participants are withholding.
type FeatureStanding struct {
	Feature       models.Feature
	GrantingCount int
	Satisfied     bool
}
