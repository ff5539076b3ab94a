package models

// Audit event actions describe what operation occurred.
const (
	AuditActionConsentGranted     = "consent_granted"      // Participant granted consent for features
	AuditActionConsentDenied      = "consent_denied"       // Participant declined while pending
	AuditActionConsentRevoked     = "consent_revoked"      // Participant withdrew an existing grant
	AuditActionConsentCheckPassed = "consent_check_passed" // Evaluation allowed an AI feature
	AuditActionConsentCheckFailed = "consent_check_failed" // Evaluation denied an AI feature
	AuditActionAIDeauthorized     = "ai_deauthorized"      // Cached aiAllowed flag forced to false on revoke
)

// Audit event decisions record the outcome of the action.
const (
	AuditDecisionGranted = "granted"
	AuditDecisionDenied  = "denied"
	AuditDecisionRevoked = "revoked"
	AuditDecisionAllowed = "allowed"
)

// Audit event reasons explain why the action was taken.
const (
	AuditReasonUserInitiated      = "user_initiated"      // Participant explicitly performed the action
	AuditReasonParticipantRemoved = "participant_removed" // Membership change re-triggered evaluation
)
