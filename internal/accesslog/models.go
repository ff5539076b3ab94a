// Package accesslog records every time an authorized AI feature access was
// actually exercised. It is record-keeping, not a gate: callers must have
// already passed evaluation before decrypting anything.
package accesslog

import (
	"time"

	consent "sanctum/internal/consent/models"
	"sanctum/pkg/contenthash"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// Entry is one append-only audit record of an exercised AI access.
//
// No plaintext ever enters this type: ContentHash is an opaque digest the
// caller derives from the decrypted content (see pkg/contenthash), letting a
// later holder of the plaintext prove which exact text was accessed without
// the log storing it. The message link is best-effort and nulled if the
// message is later deleted.
type Entry struct {
	ID                  id.AccessEntryID
	ConversationID      id.ConversationID
	MessageID           *id.MessageID
	AuthorizingUserID   id.UserID
	AuthorizingDeviceID id.DeviceID
	Feature             consent.Feature
	ContentHash         string
	AIModel             string
	AccessedAt          time.Time
}

// Validate enforces entry invariants before the append.
func (e *Entry) Validate() error {
	if e.ConversationID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "conversation ID required")
	}
	if e.AuthorizingUserID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "authorizing user ID required")
	}
	if !e.Feature.IsValid() {
		return dErrors.New(dErrors.CodeInvalidFeature, "unrecognized feature tag")
	}
	if !contenthash.Valid(e.ContentHash) {
		return dErrors.New(dErrors.CodeInvalidInput, "content hash must be a hex digest, never content")
	}
	if e.AIModel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "ai model identifier required")
	}
	return nil
}
