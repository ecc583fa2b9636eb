package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// RequestRuleConfig tunes the built-in request rule set.
type RequestRuleConfig struct {
	// ReservedNames may never be used as display names. Compared in
	// normalized form.
	ReservedNames []string

	// MaxOptions caps the option set size for choice fields.
	MaxOptions int
}

// HygieneRuleConfig tunes the built-in sweep rule set.
type HygieneRuleConfig struct {
	// StaleAfter is how long without an update counts as stale.
	StaleAfter time.Duration
}

// Display names are Title Case words: each word starts with an uppercase
// letter or digit, separated by single spaces.
var namePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*( [A-Z0-9][A-Za-z0-9]*)*$`)

// Vague words that make a short summary useless for triage.
var vagueWords = []string{"fix", "issue", "problem", "bug", "update", "change"}

// RequestRules returns the built-in rule set for schema change requests,
// in evaluation order.
func RequestRules(cfg RequestRuleConfig) []Rule {
	reserved := make(map[string]struct{}, len(cfg.ReservedNames))
	for _, name := range cfg.ReservedNames {
		reserved[schema.Normalize(name)] = struct{}{}
	}

	return []Rule{
		{
			ID:       "naming-convention",
			Severity: SeverityBlocking,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if namePattern.MatchString(strings.TrimSpace(req.Name)) {
					return "", false
				}
				return fmt.Sprintf("display name %q must be Title Case words (e.g. \"Customer Priority\")", req.Name), true
			}),
		},
		{
			ID:       "reserved-name",
			Severity: SeverityBlocking,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if _, hit := reserved[schema.Normalize(req.Name)]; hit {
					return fmt.Sprintf("name %q is reserved", req.Name), true
				}
				return "", false
			}),
		},
		{
			ID:       "supported-kind",
			Severity: SeverityBlocking,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if req.Kind.Valid() {
					return "", false
				}
				return fmt.Sprintf("element kind %q is not supported", req.Kind), true
			}),
		},
		{
			ID:       "option-set-required",
			Severity: SeverityBlocking,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if req.Kind == schema.KindChoice && len(req.Options) == 0 {
					return "choice fields require a non-empty option set", true
				}
				return "", false
			}),
		},
		{
			ID:       "option-set-max",
			Severity: SeverityBlocking,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if cfg.MaxOptions > 0 && len(req.Options) > cfg.MaxOptions {
					return fmt.Sprintf("option set has %d entries, maximum is %d", len(req.Options), cfg.MaxOptions), true
				}
				return "", false
			}),
		},
		{
			ID:       "options-on-choice-only",
			Severity: SeverityAdvisory,
			Check: onRequest(func(req *schema.ElementRequest) (string, bool) {
				if req.Kind != schema.KindChoice && len(req.Options) > 0 {
					return "option set is ignored for non-choice fields", true
				}
				return "", false
			}),
		},
	}
}

// HygieneRules returns the built-in rule set for existing records, in
// evaluation order. Blocking rules carry a remediation descriptor so the
// sweep driver can hand them to the orchestrator's write path.
func HygieneRules(cfg HygieneRuleConfig) []Rule {
	return []Rule{
		{
			ID:       "missing-assignee",
			Severity: SeverityBlocking,
			Remedy:   RemedyAssignOwner,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				if rec.Assignee == "" {
					return "ticket has no assignee", true
				}
				return "", false
			}),
		},
		{
			ID:       "missing-labels",
			Severity: SeverityBlocking,
			Remedy:   RemedyApplyLabel,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				if len(rec.Labels) == 0 {
					return "ticket has no labels", true
				}
				return "", false
			}),
		},
		{
			ID:       "stale-update",
			Severity: SeverityBlocking,
			Remedy:   RemedyNudge,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				if cfg.StaleAfter > 0 && !rec.UpdatedAt.IsZero() && time.Since(rec.UpdatedAt) > cfg.StaleAfter {
					return fmt.Sprintf("ticket has not been updated in over %s", cfg.StaleAfter), true
				}
				return "", false
			}),
		},
		{
			ID:       "missing-priority",
			Severity: SeverityAdvisory,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				if rec.Priority == "" || strings.EqualFold(rec.Priority, "none") {
					return "ticket has no priority set", true
				}
				return "", false
			}),
		},
		{
			ID:       "minimal-description",
			Severity: SeverityAdvisory,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				if len(strings.TrimSpace(rec.Description)) < 20 {
					return "ticket has minimal or missing description", true
				}
				return "", false
			}),
		},
		{
			ID:       "vague-summary",
			Severity: SeverityAdvisory,
			Check: onRecord(func(rec *schema.RecordMetadata) (string, bool) {
				summary := strings.ToLower(rec.Summary)
				if len(rec.Summary) >= 30 {
					return "", false
				}
				for _, word := range vagueWords {
					if strings.Contains(summary, word) {
						return "summary uses vague language", true
					}
				}
				return "", false
			}),
		},
	}
}

// onRequest lifts a request predicate to a CheckFunc. Rules written for
// requests pass on every other subject.
func onRequest(fn func(*schema.ElementRequest) (string, bool)) CheckFunc {
	return func(s Subject) (string, bool) {
		if s.Request == nil {
			return "", false
		}
		return fn(s.Request)
	}
}

// onRecord lifts a record predicate to a CheckFunc.
func onRecord(fn func(*schema.RecordMetadata) (string, bool)) CheckFunc {
	return func(s Subject) (string, bool) {
		if s.Record == nil {
			return "", false
		}
		return fn(s.Record)
	}
}
