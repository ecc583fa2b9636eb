package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Customer Priority", "customer priority"},
		{"hyphenated", "customer-priority", "customer priority"},
		{"mixed separators", "customer__priority--level", "customer priority level"},
		{"trailing punctuation", "Customer ID#", "customer id"},
		{"leading whitespace", "   Customer ID", "customer id"},
		{"collapsed whitespace", "Customer    ID", "customer id"},
		{"case folding", "CUSTOMER Id", "customer id"},
		{"digits preserved", "SLA Tier 2", "sla tier 2"},
		{"empty", "", ""},
		{"punctuation only", "-- # --", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_EquivalentPairs(t *testing.T) {
	// Pairs differing only by case, whitespace, or punctuation must
	// normalize identically.
	pairs := [][2]string{
		{"Customer Priority", "customer-priority"},
		{"Customer ID", "Customer_Id"},
		{"Release Version", "release  version"},
		{"Team/Owner", "Team Owner"},
	}

	for _, p := range pairs {
		assert.Equal(t, Normalize(p[0]), Normalize(p[1]), "pair %q / %q", p[0], p[1])
	}
}

func TestElementKind_Valid(t *testing.T) {
	assert.True(t, KindChoice.Valid())
	assert.True(t, KindText.Valid())
	assert.True(t, KindParagraph.Valid())
	assert.False(t, ElementKind("").Valid())
	assert.False(t, ElementKind("date").Valid())
}
