package domain

// SensitivityTier classifies how widely a document's content may be seen.
// Tiers form a strict total order: public < internal < confidential <
// restricted < privileged.
type SensitivityTier string

const (
	TierPublic       SensitivityTier = "public"
	TierInternal     SensitivityTier = "internal"
	TierConfidential SensitivityTier = "confidential"
	TierRestricted   SensitivityTier = "restricted"
	TierPrivileged   SensitivityTier = "privileged"
)

// DefaultRequestedTier is assumed when a caller does not ask for a tier.
const DefaultRequestedTier = TierInternal

var tierOrder = map[SensitivityTier]int{
	TierPublic:       0,
	TierInternal:     1,
	TierConfidential: 2,
	TierRestricted:   3,
	TierPrivileged:   4,
}

// IsValidSensitivityTier reports whether t is a known tier.
func IsValidSensitivityTier(t SensitivityTier) bool {
	_, ok := tierOrder[t]
	return ok
}

// AtMost reports whether t is at or below ceiling in the tier order.
// Unknown tiers are never at or below anything.
func (t SensitivityTier) AtMost(ceiling SensitivityTier) bool {
	to, ok := tierOrder[t]
	if !ok {
		return false
	}
	co, ok := tierOrder[ceiling]
	if !ok {
		return false
	}
	return to <= co
}

// ResolveTier computes the effective maximum tier for a retrieval:
// the minimum of the requested tier and the credential's ceiling.
// An empty requested tier defaults to internal. The caller can never
// exceed the ceiling, regardless of what it asks for.
func ResolveTier(requested, ceiling SensitivityTier) (SensitivityTier, error) {
	if requested == "" {
		requested = DefaultRequestedTier
	}

	ro, ok := tierOrder[requested]
	if !ok {
		return "", ErrInvalidSensitivityTier
	}
	co, ok := tierOrder[ceiling]
	if !ok {
		return "", ErrInvalidSensitivityTier
	}

	if ro <= co {
		return requested, nil
	}
	return ceiling, nil
}

// TiersUpTo returns all tiers at or below ceiling, in ascending order.
// Used to express the sensitivity gate as a set membership test in SQL.
func TiersUpTo(ceiling SensitivityTier) []SensitivityTier {
	co, ok := tierOrder[ceiling]
	if !ok {
		return nil
	}

	ordered := []SensitivityTier{TierPublic, TierInternal, TierConfidential, TierRestricted, TierPrivileged}
	return ordered[:co+1]
}
