package domain

import (
	"fmt"
	"time"
)

// AgentCredential authenticates an agent and bounds what it may retrieve.
// The ceiling is the maximum sensitivity tier the credential may request,
// independent of what any individual call asks for.
type AgentCredential struct {
	ID              string
	TenantID        string
	Name            string
	KeyHash         string // Never store plaintext keys
	ActorType       ActorType
	Ceiling         SensitivityTier
	AllowedProfiles []string
	CreatedAt       time.Time
	RevokedAt       *time.Time
}

// IsRevoked returns true if the credential has been revoked
func (c *AgentCredential) IsRevoked() bool {
	return c.RevokedAt != nil
}

// Context returns the TenantContext this credential resolves to.
func (c *AgentCredential) Context() *TenantContext {
	return &TenantContext{
		TenantID:        c.TenantID,
		ActorID:         c.ID,
		ActorType:       c.ActorType,
		Ceiling:         c.Ceiling,
		AllowedProfiles: c.AllowedProfiles,
	}
}

// ValidateAgentCredential validates an AgentCredential instance
func ValidateAgentCredential(c *AgentCredential) error {
	if c == nil {
		return fmt.Errorf("agent credential cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("agent credential ID is required")
	}

	if c.TenantID == "" {
		return fmt.Errorf("agent credential TenantID is required")
	}

	if c.Name == "" {
		return fmt.Errorf("agent credential Name is required")
	}

	if c.KeyHash == "" {
		return fmt.Errorf("agent credential KeyHash is required")
	}

	if !isValidActorType(c.ActorType) {
		return ErrInvalidActorType
	}

	if !IsValidSensitivityTier(c.Ceiling) {
		return ErrInvalidSensitivityTier
	}

	return nil
}
