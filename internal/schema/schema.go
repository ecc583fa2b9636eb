// Package schema defines the shared data model for the field governance
// engine: catalog elements, inbound change requests, and the record
// metadata consumed by governance sweeps.
package schema

import (
	"strings"
	"time"
	"unicode"
)

// ElementKind enumerates the supported schema element types.
type ElementKind string

const (
	// KindChoice is a single-select dropdown field with a fixed option set.
	KindChoice ElementKind = "choice"

	// KindText is a single-line text field.
	KindText ElementKind = "text"

	// KindParagraph is a multi-line text field.
	KindParagraph ElementKind = "paragraph"

	// KindUnmapped marks a catalog entry whose upstream type has no
	// requestable counterpart. Such entries still occupy their name for
	// duplicate detection but can never be requested.
	KindUnmapped ElementKind = "unmapped"
)

// Valid reports whether the kind is one of the supported element types.
func (k ElementKind) Valid() bool {
	switch k {
	case KindChoice, KindText, KindParagraph:
		return true
	}
	return false
}

// Element is one entry in the tracker's custom-field catalog.
//
// Elements are immutable snapshot data: the catalog reader builds them
// once per fetch cycle and callers must not mutate them.
type Element struct {
	// ID is the tracker-assigned field identifier (e.g. "customfield_10042").
	ID string `json:"id"`

	// Name is the raw display name as configured upstream.
	Name string `json:"name"`

	// NormalizedName is the canonical comparable form of Name.
	NormalizedName string `json:"normalized_name"`

	// Kind is the element type.
	Kind ElementKind `json:"kind"`

	// Options is the ordered option set (empty for non-choice kinds).
	Options []string `json:"options,omitempty"`

	// Screens lists the screen IDs the element is bound to.
	Screens []string `json:"screens,omitempty"`
}

// ElementRequest is a validated-and-provisioned unit of work: one
// requested schema element plus the ticket that asked for it.
//
// Requests live only for the duration of one orchestration run.
type ElementRequest struct {
	// Name is the requested display name.
	Name string `json:"name"`

	// Kind is the requested element type.
	Kind ElementKind `json:"kind"`

	// Options is the requested option set (choice kinds only).
	Options []string `json:"options,omitempty"`

	// Screens lists the screen IDs to bind the element to. When empty the
	// orchestrator falls back to its configured default screens.
	Screens []string `json:"screens,omitempty"`

	// IssueKey references the requesting ticket (e.g. "OPS-123").
	IssueKey string `json:"issue_key"`
}

// RecordMetadata is the governance-relevant subset of an existing ticket,
// used as the sweep subject for hygiene rules. Ticket body content is
// never carried beyond the fields needed for rule predicates.
type RecordMetadata struct {
	IssueKey    string    `json:"issue_key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Assignee    string    `json:"assignee"`
	Priority    string    `json:"priority"`
	Labels      []string  `json:"labels"`
	Components  []string  `json:"components"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Normalize reduces a display name to its canonical comparable form:
// case-folded, with every run of whitespace, punctuation, or other
// separators collapsed to a single space.
//
//	Normalize("Customer Priority") == "customer priority"
//	Normalize("customer-priority") == "customer priority"
//	Normalize("  Customer   ID#")  == "customer id"
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	return b.String()
}
