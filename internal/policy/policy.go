// Package policy evaluates governance rules against schema change requests
// and existing ticket metadata.
//
// Rules are data, not branching code: an ordered table of pure predicates
// with a severity each. The engine evaluates every rule, never
// short-circuiting, so a rejected request reports everything wrong at once
// instead of one error at a time. Rules are loaded once at startup and
// immutable thereafter; declaration order is evaluation order, so the
// first blocking failure is reproducible.
package policy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// Severity classifies how a failed rule affects the outcome.
type Severity string

const (
	// SeverityBlocking fails the subject outright.
	SeverityBlocking Severity = "blocking"

	// SeverityAdvisory is surfaced as a finding but does not block.
	SeverityAdvisory Severity = "advisory"
)

// Outcome is the overall evaluation result.
type Outcome string

const (
	OutcomeApproved    Outcome = "APPROVED"
	OutcomeNeedsReview Outcome = "NEEDS_REVIEW"
	OutcomeRejected    Outcome = "REJECTED"
)

// RemedyKind describes the remediation action a failed hygiene rule maps
// to. Empty for rules with no automated remedy.
type RemedyKind string

const (
	RemedyNone        RemedyKind = ""
	RemedyAssignOwner RemedyKind = "assign_default_owner"
	RemedyApplyLabel  RemedyKind = "apply_default_label"
	RemedyNudge       RemedyKind = "nudge_comment"
)

// Subject is the tagged union a rule predicate evaluates: either a schema
// change request or an existing record's metadata. Exactly one field is
// set.
type Subject struct {
	Request *schema.ElementRequest
	Record  *schema.RecordMetadata
}

// RequestSubject wraps a change request for evaluation.
func RequestSubject(req *schema.ElementRequest) Subject {
	return Subject{Request: req}
}

// RecordSubject wraps record metadata for evaluation.
func RecordSubject(rec *schema.RecordMetadata) Subject {
	return Subject{Record: rec}
}

// CheckFunc is a pure predicate over a subject. It returns a failure
// message and true when the rule is violated; predicates perform no side
// effects and no external calls.
type CheckFunc func(s Subject) (string, bool)

// Rule is one governance rule: a unique identifier, a severity, an
// optional remediation descriptor, and the predicate itself.
type Rule struct {
	ID       string
	Severity Severity
	Remedy   RemedyKind
	Check    CheckFunc
}

// Finding is one failed rule.
type Finding struct {
	RuleID   string     `json:"rule_id"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Remedy   RemedyKind `json:"remedy,omitempty"`
}

// Result is the outcome of evaluating all rules against one subject.
// Invariant: Outcome == OutcomeRejected implies at least one blocking
// finding.
type Result struct {
	Outcome  Outcome   `json:"outcome"`
	Findings []Finding `json:"findings,omitempty"`
}

// Blocking returns the blocking findings in evaluation order.
func (r Result) Blocking() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityBlocking {
			out = append(out, f)
		}
	}
	return out
}

// Engine evaluates an ordered, immutable rule table.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine creates an engine from the given rules. Rule identifiers must
// be unique and non-empty.
func NewEngine(rules []Rule, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("policy: rule with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("policy: duplicate rule id %q", r.ID)
		}
		if r.Check == nil {
			return nil, fmt.Errorf("policy: rule %q has no predicate", r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	return &Engine{rules: rules, logger: logger}, nil
}

// Evaluate runs every rule against the subject and folds the findings into
// an outcome: any blocking failure rejects, advisory-only failures need
// review, no failures approve.
func (e *Engine) Evaluate(subject Subject) Result {
	result := Result{Outcome: OutcomeApproved}

	for _, rule := range e.rules {
		msg, failed := rule.Check(subject)
		if !failed {
			continue
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:   rule.ID,
			Severity: rule.Severity,
			Message:  msg,
			Remedy:   rule.Remedy,
		})
		if rule.Severity == SeverityBlocking {
			result.Outcome = OutcomeRejected
		} else if result.Outcome == OutcomeApproved {
			result.Outcome = OutcomeNeedsReview
		}
	}

	if len(result.Findings) > 0 {
		e.logger.Debug("policy evaluation",
			zap.String("outcome", string(result.Outcome)),
			zap.Int("findings", len(result.Findings)),
		)
	}

	return result
}
