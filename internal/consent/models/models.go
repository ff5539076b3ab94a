package models

import (
	"time"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ConsentRecord captures one participant's decision for one conversation.
//
// # Scoping Invariant
//
// A record is ALWAYS scoped by (ConversationID, UserID). The combination is
// unique: each participant has at most one consent record per conversation.
//
// Security implications:
//   - Only the owning user may write their own record; the service layer
//     enforces this with the verified caller identity
//   - AllowedFeatures is empty unless Status is Granted
//   - GrantedAt is present iff the record has ever been granted
//   - A record whose ExpiresAt is in the past is treated as non-granting
//     without requiring a write (lazy expiry)
type ConsentRecord struct {
	ConversationID   id.ConversationID
	UserID           id.UserID
	Status           Status
	AllowedFeatures  FeatureSet
	GrantedAt        *time.Time
	ExpiresAt        *time.Time
	DeniedReason     *string
	GrantingDeviceID id.DeviceID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewRecord creates a ConsentRecord with domain invariant checks.
func NewRecord(conversationID id.ConversationID, userID id.UserID, status Status) (*ConsentRecord, error) {
	if conversationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "conversation ID required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user ID required")
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent status")
	}
	now := time.Now()
	return &ConsentRecord{
		ConversationID: conversationID,
		UserID:         userID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// PendingRecord is the implicit default for a participant who has never
// responded. It is never persisted; it exists so reads have a uniform shape.
func PendingRecord(conversationID id.ConversationID, userID id.UserID) *ConsentRecord {
	return &ConsentRecord{
		ConversationID: conversationID,
		UserID:         userID,
		Status:         StatusPending,
	}
}

// IsGranting reports whether this record authorizes the feature at the given
// time: status granted, feature in the allowed set, and not expired.
func (c ConsentRecord) IsGranting(feature Feature, now time.Time) bool {
	if c.Status != StatusGranted {
		return false
	}
	if !c.AllowedFeatures.Contains(feature) {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Expired reports lazy expiry without mutating the record.
func (c ConsentRecord) Expired(now time.Time) bool {
	return c.Status == StatusGranted && c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// ComputeState reports the display state at the provided time. A granted
// record past its expiry shows as expired even though the stored status is
// still granted.
func (c ConsentRecord) ComputeState(now time.Time) DisplayState {
	if c.Expired(now) {
		return StateExpired
	}
	switch c.Status {
	case StatusGranted:
		return StateGranted
	case StatusDenied:
		return StateDenied
	case StatusRevoked:
		return StateRevoked
	default:
		return StatePending
	}
}

// CanGrant reports whether a grant transition is legal from the current
// status. Pending, denied, and revoked records may all (re-)grant; there is
// no terminal state in the consent machine.
func (c ConsentRecord) CanGrant() bool {
	return c.Status != StatusGranted
}

// CanDeny reports whether a deny transition is legal. Denial is the
// "never agreed" branch, so it is only reachable from pending.
func (c ConsentRecord) CanDeny() bool {
	return c.Status == StatusPending
}

// CanRevoke reports whether a revoke transition is legal. Only an existing
// grant can be withdrawn.
func (c ConsentRecord) CanRevoke() bool {
	return c.Status == StatusGranted
}
