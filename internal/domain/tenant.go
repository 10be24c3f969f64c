package domain

import (
	"fmt"
	"time"
)

// Tenant is an isolated organizational unit, such as a department. Its
// documents and audit chain are logically partitioned from all others.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// TenantContext carries the resolved identity for one request: the tenant,
// the acting credential, and the governance bounds configured for it.
type TenantContext struct {
	TenantID        string
	ActorID         string
	ActorType       ActorType
	Ceiling         SensitivityTier
	AllowedProfiles []string
}

// ValidateTenant validates a Tenant instance
func ValidateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	if t.Name == "" {
		return fmt.Errorf("tenant Name is required")
	}

	return nil
}
