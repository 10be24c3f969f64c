package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Visibility controls which tenants may see a document.
type Visibility string

const (
	// VisibilityPrivate documents are visible only to the owning tenant.
	VisibilityPrivate Visibility = "private"
	// VisibilityCitywide documents are open to every tenant that opts in.
	VisibilityCitywide Visibility = "citywide"
	// VisibilityShared documents are visible to the owning tenant plus the
	// tenants named in SharedWith.
	VisibilityShared Visibility = "shared"
)

// DocumentStatus represents the lifecycle state of a document.
type DocumentStatus string

const (
	DocumentStatusActive   DocumentStatus = "active"
	DocumentStatusArchived DocumentStatus = "archived"
)

// Document represents one ingested unit of knowledge.
type Document struct {
	ID          string
	TenantID    string
	Title       string
	SourcePath  string
	Content     string
	Fingerprint string // sha256 of Content; changing content changes the fingerprint
	Visibility  Visibility
	Sensitivity SensitivityTier
	Profile     string // optional knowledge-profile tag
	SharedWith  []string
	Status      DocumentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentFingerprint returns the hex-encoded sha256 of content.
func ContentFingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// VisibleTo reports whether the document's visibility scope and shared-with
// set admit the given tenant. A private document owned by another tenant is
// never visible, even when includeCitywide is set.
func (d *Document) VisibleTo(tenantID string, includeCitywide bool) bool {
	if d.TenantID == tenantID {
		return true
	}
	switch d.Visibility {
	case VisibilityCitywide:
		return includeCitywide
	case VisibilityShared:
		for _, t := range d.SharedWith {
			if t == tenantID {
				return true
			}
		}
	}
	return false
}

// EligibleFor is the full retrieval eligibility predicate: tenant match or
// an admitting visibility scope, sensitivity at or below the ceiling, and,
// when allowedProfiles is non-empty, a matching knowledge profile.
func (d *Document) EligibleFor(tenantID string, includeCitywide bool, ceiling SensitivityTier, allowedProfiles []string) bool {
	if d.Status != DocumentStatusActive {
		return false
	}
	if !d.VisibleTo(tenantID, includeCitywide) {
		return false
	}
	if !d.Sensitivity.AtMost(ceiling) {
		return false
	}
	if len(allowedProfiles) > 0 {
		matched := false
		for _, p := range allowedProfiles {
			if d.Profile == p {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// isValidVisibility checks if a Visibility is valid
func isValidVisibility(v Visibility) bool {
	switch v {
	case VisibilityPrivate, VisibilityCitywide, VisibilityShared:
		return true
	}
	return false
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusActive, DocumentStatusArchived:
		return true
	}
	return false
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.TenantID == "" {
		return fmt.Errorf("document TenantID is required")
	}

	if d.Title == "" {
		return fmt.Errorf("document Title is required")
	}

	if d.Fingerprint == "" {
		return fmt.Errorf("document Fingerprint is required")
	}

	if !isValidVisibility(d.Visibility) {
		return ErrInvalidVisibility
	}

	if !IsValidSensitivityTier(d.Sensitivity) {
		return ErrInvalidSensitivityTier
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	if d.Visibility != VisibilityShared && len(d.SharedWith) > 0 {
		return fmt.Errorf("SharedWith is only meaningful for shared visibility")
	}

	return nil
}
