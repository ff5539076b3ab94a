// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "sanctum/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing UserID where ConversationID is expected.
type (
	ConversationID uuid.UUID
	UserID         uuid.UUID
	MessageID      uuid.UUID
	AccessEntryID  uuid.UUID
)

// DeviceID is an opaque client-supplied device identifier. Devices register
// with the messaging layer, not with this service, so no UUID shape is assumed.
type DeviceID string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseConversationID(s string) (ConversationID, error) {
	id, err := parseUUID(s, "conversation ID")
	return ConversationID(id), err
}

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseMessageID(s string) (MessageID, error) {
	id, err := parseUUID(s, "message ID")
	return MessageID(id), err
}

func ParseAccessEntryID(s string) (AccessEntryID, error) {
	id, err := parseUUID(s, "access entry ID")
	return AccessEntryID(id), err
}

// String methods - for logging and debugging.

func (id ConversationID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id MessageID) String() string      { return uuid.UUID(id).String() }
func (id AccessEntryID) String() string  { return uuid.UUID(id).String() }
func (id DeviceID) String() string       { return string(id) }

// IsNil checks - used for service-layer validation.

func (id ConversationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AccessEntryID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsNil() bool       { return id == "" }

// NewAccessEntryID mints a random identifier for an access log entry.
func NewAccessEntryID() AccessEntryID {
	return AccessEntryID(uuid.New())
}

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here; use IsNil() at the service layer for business
// validation so store lookups can return proper "not found" errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
