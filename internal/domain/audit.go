package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ActorType identifies what kind of principal performed an audited action.
type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeAgent    ActorType = "agent"
	ActorTypeSystem   ActorType = "system"
	ActorTypeService  ActorType = "service"
	ActorTypeExternal ActorType = "external"
)

// Outcome records how an audited action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Severity grades an audit record for triage.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuditRecord is one immutable fact in a tenant's hash chain. Records are
// created exactly once via append, never mutated, never deleted. The first
// record for a tenant has Sequence 1 and an empty PreviousHash.
type AuditRecord struct {
	ID           string
	TenantID     string
	Sequence     int64
	Timestamp    time.Time
	ActorID      string
	ActorType    ActorType
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      Outcome
	Severity     Severity
	Payload      map[string]any
	PreviousHash string
	RecordHash   string
}

// hashEnvelope fixes the field order of the canonical byte representation.
// Payload marshals with sorted keys, so the encoding is deterministic for
// identical record content.
type hashEnvelope struct {
	TenantID     string         `json:"tenant_id"`
	Sequence     int64          `json:"sequence"`
	Timestamp    string         `json:"timestamp"`
	ActorID      string         `json:"actor_id"`
	ActorType    ActorType      `json:"actor_type"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Outcome      Outcome        `json:"outcome"`
	Severity     Severity       `json:"severity"`
	Payload      map[string]any `json:"payload"`
	PreviousHash string         `json:"previous_hash"`
}

// CanonicalTimestamp truncates to microsecond precision so the hash input
// survives a round trip through a timestamptz column.
func CanonicalTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeRecordHash returns the hex sha256 over the canonical byte
// representation of every content field plus the previous hash.
func ComputeRecordHash(r *AuditRecord) (string, error) {
	env := hashEnvelope{
		TenantID:     r.TenantID,
		Sequence:     r.Sequence,
		Timestamp:    CanonicalTimestamp(r.Timestamp).Format(time.RFC3339Nano),
		ActorID:      r.ActorID,
		ActorType:    r.ActorType,
		Action:       r.Action,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		Outcome:      r.Outcome,
		Severity:     r.Severity,
		Payload:      r.Payload,
		PreviousHash: r.PreviousHash,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize audit record: %w", err)
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// isValidActorType checks if an ActorType is valid
func isValidActorType(t ActorType) bool {
	switch t {
	case ActorTypeUser, ActorTypeAgent, ActorTypeSystem, ActorTypeService, ActorTypeExternal:
		return true
	}
	return false
}

// isValidOutcome checks if an Outcome is valid
func isValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial:
		return true
	}
	return false
}

// isValidSeverity checks if a Severity is valid
func isValidSeverity(s Severity) bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// ValidateAuditRecord validates an AuditRecord instance
func ValidateAuditRecord(r *AuditRecord) error {
	if r == nil {
		return fmt.Errorf("audit record cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("audit record ID is required")
	}

	if r.TenantID == "" {
		return fmt.Errorf("audit record TenantID is required")
	}

	if r.Sequence < 1 {
		return fmt.Errorf("audit record Sequence must be positive")
	}

	if r.Sequence == 1 && r.PreviousHash != "" {
		return ErrGenesisSequence
	}

	if r.Sequence > 1 && r.PreviousHash == "" {
		return fmt.Errorf("audit record PreviousHash is required beyond the genesis record")
	}

	if r.Timestamp.IsZero() {
		return fmt.Errorf("audit record Timestamp is required")
	}

	if r.ActorID == "" {
		return fmt.Errorf("audit record ActorID is required")
	}

	if !isValidActorType(r.ActorType) {
		return ErrInvalidActorType
	}

	if r.Action == "" {
		return fmt.Errorf("audit record Action is required")
	}

	if !isValidOutcome(r.Outcome) {
		return ErrInvalidOutcome
	}

	if !isValidSeverity(r.Severity) {
		return ErrInvalidSeverity
	}

	if r.RecordHash == "" {
		return fmt.Errorf("audit record RecordHash is required")
	}

	return nil
}
