package catalog

import (
	"context"

	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

// FieldLister is the tracker call the catalog source depends on.
type FieldLister interface {
	ListFields(ctx context.Context) ([]jira.Field, error)
}

// JiraSource adapts the tracker client to the catalog Source interface,
// mapping tracker field types onto element kinds.
type JiraSource struct {
	client FieldLister
}

// NewJiraSource creates a catalog source backed by the tracker client.
func NewJiraSource(client FieldLister) *JiraSource {
	return &JiraSource{client: client}
}

// ListElements lists all custom fields as schema elements. Fields with an
// unrecognized type are carried as KindUnmapped: duplicate detection is
// name-based, so every catalog name must be present regardless of type.
func (s *JiraSource) ListElements(ctx context.Context) ([]schema.Element, error) {
	fields, err := s.client.ListFields(ctx)
	if err != nil {
		return nil, err
	}

	elements := make([]schema.Element, 0, len(fields))
	for _, f := range fields {
		kind, ok := KindForType(f.Type)
		if !ok {
			kind = schema.KindUnmapped
		}
		elements = append(elements, schema.Element{
			ID:             f.ID,
			Name:           f.Name,
			NormalizedName: schema.Normalize(f.Name),
			Kind:           kind,
			Options:        f.Options,
			Screens:        f.Screens,
		})
	}
	return elements, nil
}

// KindForType maps a tracker custom field type to an element kind.
func KindForType(fieldType string) (schema.ElementKind, bool) {
	switch fieldType {
	case jira.TypeSelect:
		return schema.KindChoice, true
	case jira.TypeTextField:
		return schema.KindText, true
	case jira.TypeTextArea:
		return schema.KindParagraph, true
	}
	return "", false
}

// TypeForKind maps an element kind to the tracker custom field type.
func TypeForKind(kind schema.ElementKind) string {
	switch kind {
	case schema.KindChoice:
		return jira.TypeSelect
	case schema.KindText:
		return jira.TypeTextField
	case schema.KindParagraph:
		return jira.TypeTextArea
	}
	return ""
}
