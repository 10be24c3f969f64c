package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeDocument(tenantID string, visibility Visibility, tier SensitivityTier) *Document {
	return &Document{
		ID:          "doc-1",
		TenantID:    tenantID,
		Title:       "Zoning variance procedure",
		Content:     "body",
		Fingerprint: ContentFingerprint("body"),
		Visibility:  visibility,
		Sensitivity: tier,
		Status:      DocumentStatusActive,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestVisibleTo(t *testing.T) {
	tests := []struct {
		name            string
		doc             *Document
		tenant          string
		includeCitywide bool
		expected        bool
	}{
		{"OwnerSeesPrivate", activeDocument("planning", VisibilityPrivate, TierInternal), "planning", false, true},
		{"OtherTenantNeverSeesPrivate", activeDocument("planning", VisibilityPrivate, TierInternal), "housing", false, false},
		{"PrivateStaysPrivateWithCitywideFlag", activeDocument("planning", VisibilityPrivate, TierInternal), "housing", true, false},
		{"CitywideRequiresOptIn", activeDocument("planning", VisibilityCitywide, TierInternal), "housing", false, false},
		{"CitywideVisibleWithOptIn", activeDocument("planning", VisibilityCitywide, TierInternal), "housing", true, true},
		{"SharedNotInSet", activeDocument("planning", VisibilityShared, TierInternal), "housing", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.doc.VisibleTo(tt.tenant, tt.includeCitywide))
		})
	}
}

func TestVisibleToSharedSet(t *testing.T) {
	doc := activeDocument("planning", VisibilityShared, TierInternal)
	doc.SharedWith = []string{"housing", "transport"}

	assert.True(t, doc.VisibleTo("housing", false))
	assert.True(t, doc.VisibleTo("transport", false))
	assert.False(t, doc.VisibleTo("finance", false))
	assert.True(t, doc.VisibleTo("planning", false))
}

func TestEligibleForSensitivityGate(t *testing.T) {
	restricted := activeDocument("planning", VisibilityPrivate, TierRestricted)
	confidential := activeDocument("planning", VisibilityPrivate, TierConfidential)

	// ceiling confidential: a restricted document is excluded, a
	// confidential one is included
	effective, err := ResolveTier(TierRestricted, TierConfidential)
	require.NoError(t, err)
	assert.Equal(t, TierConfidential, effective)

	assert.False(t, restricted.EligibleFor("planning", false, effective, nil))
	assert.True(t, confidential.EligibleFor("planning", false, effective, nil))
}

func TestEligibleForProfileGate(t *testing.T) {
	doc := activeDocument("planning", VisibilityPrivate, TierInternal)
	doc.Profile = "housing"

	assert.True(t, doc.EligibleFor("planning", false, TierInternal, nil))
	assert.True(t, doc.EligibleFor("planning", false, TierInternal, []string{"housing", "legislation"}))
	assert.False(t, doc.EligibleFor("planning", false, TierInternal, []string{"legislation"}))
}

func TestEligibleForArchivedDocument(t *testing.T) {
	doc := activeDocument("planning", VisibilityPrivate, TierInternal)
	doc.Status = DocumentStatusArchived

	assert.False(t, doc.EligibleFor("planning", false, TierPrivileged, nil))
}

func TestContentFingerprint(t *testing.T) {
	a := ContentFingerprint("same content")
	b := ContentFingerprint("same content")
	c := ContentFingerprint("different content")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestValidateDocument(t *testing.T) {
	doc := activeDocument("planning", VisibilityPrivate, TierInternal)
	require.NoError(t, ValidateDocument(doc))

	missing := *doc
	missing.Title = ""
	assert.Error(t, ValidateDocument(&missing))

	badTier := *doc
	badTier.Sensitivity = "classified"
	assert.ErrorIs(t, ValidateDocument(&badTier), ErrInvalidSensitivityTier)

	badVisibility := *doc
	badVisibility.Visibility = "everyone"
	assert.ErrorIs(t, ValidateDocument(&badVisibility), ErrInvalidVisibility)

	sharedWithOnPrivate := *doc
	sharedWithOnPrivate.SharedWith = []string{"housing"}
	assert.Error(t, ValidateDocument(&sharedWithOnPrivate))

	assert.Error(t, ValidateDocument(nil))
}
