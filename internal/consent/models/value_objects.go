package models

import (
	"slices"
)

// Feature labels an AI capability that is gated independently. Feature binding
// allows a participant to consent to translation without also consenting to
// mention responses.
type Feature string

const (
	FeatureMentionResponse Feature = "mention_response"
	FeatureTranslation     Feature = "translation"
	FeatureSummary         Feature = "summary"
	FeatureModeration      Feature = "moderation"
)

// ValidFeatures is the single source of truth for all recognized feature tags.
var ValidFeatures = map[Feature]bool{
	FeatureMentionResponse: true,
	FeatureTranslation:     true,
	FeatureSummary:         true,
	FeatureModeration:      true,
}

// IsValid checks if the feature is one of the supported enum values.
func (f Feature) IsValid() bool {
	return ValidFeatures[f]
}

// FeatureSet is an ordered, duplicate-free collection of feature tags.
type FeatureSet []Feature

// NewFeatureSet deduplicates the given features preserving first-seen order.
func NewFeatureSet(features ...Feature) FeatureSet {
	var set FeatureSet
	for _, f := range features {
		if !slices.Contains(set, f) {
			set = append(set, f)
		}
	}
	return set
}

// Contains reports whether the set includes the feature.
func (s FeatureSet) Contains(f Feature) bool {
	return slices.Contains(s, f)
}

// Merge returns a new set with the feature added if not already present.
func (s FeatureSet) Merge(f Feature) FeatureSet {
	if s.Contains(f) {
		return s
	}
	merged := make(FeatureSet, len(s), len(s)+1)
	copy(merged, s)
	return append(merged, f)
}

// Equal reports whether both sets hold the same features regardless of order.
func (s FeatureSet) Equal(other FeatureSet) bool {
	if len(s) != len(other) {
		return false
	}
	for _, f := range s {
		if !other.Contains(f) {
			return false
		}
	}
	return true
}

// Strings converts the set for serialization and logging.
func (s FeatureSet) Strings() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = string(f)
	}
	return out
}

// ParseFeatureSet validates and deduplicates raw feature tags. The bool result
// is false when any tag is unrecognized; the offending tag is returned.
func ParseFeatureSet(raw []string) (FeatureSet, string, bool) {
	var set FeatureSet
	for _, r := range raw {
		f := Feature(r)
		if !f.IsValid() {
			return nil, r, false
		}
		if !set.Contains(f) {
			set = append(set, f)
		}
	}
	return set, "", true
}

// Status represents the lifecycle state of a consent record.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusRevoked Status = "revoked"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGranted, StatusDenied, StatusRevoked:
		return true
	}
	return false
}

// DisplayState is the status as reported to participants. It extends Status
// with the derived "expired" state: expiry is lazy and never written back to
// the record, so it only exists at read time.
type DisplayState string

const (
	StatePending DisplayState = "pending"
	StateGranted DisplayState = "granted"
	StateDenied  DisplayState = "denied"
	StateRevoked DisplayState = "revoked"
	StateExpired DisplayState = "expired"
)
