// Package orchestrator drives a schema change request through validation,
// creation, option configuration, and screen binding against the tracker,
// with retry, idempotency, and reverse-order compensation on partial
// failure.
package orchestrator

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/fieldgov/internal/dedup"
	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// State is one state of the orchestration state machine.
type State string

const (
	StatePending            State = "PENDING"
	StateValidating         State = "VALIDATING"
	StateCreating           State = "CREATING"
	StateConfiguringOptions State = "CONFIGURING_OPTIONS"
	StateBinding            State = "BINDING"

	// Terminal states.
	StateComplete State = "COMPLETE"
	StateRejected State = "REJECTED"
	StateFailed   State = "FAILED"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateRejected, StateFailed:
		return true
	}
	return false
}

// ErrUpstreamRejected means the tracker permanently rejected a write (for
// example the name was taken at the moment of creation despite passing
// local checks). Treated as a race: surfaced as FAILED without retry.
var ErrUpstreamRejected = errors.New("orchestrator: upstream rejected write")

// Step names recorded in the run log. Option and binding steps are
// suffixed with the option value or screen ID.
const (
	stepCreate = "create"
	stepOption = "option:"
	stepBind   = "bind:"
)

// StepRecord is one completed write step, appended to the run log so
// compensation can undo it.
type StepRecord struct {
	Step     string    `json:"step"`
	Token    string    `json:"token"`
	FieldID  string    `json:"field_id,omitempty"`
	Option   string    `json:"option,omitempty"`
	ScreenID string    `json:"screen_id,omitempty"`
	At       time.Time `json:"at"`
}

// Run is one orchestration state machine instance. It is owned exclusively
// by the engine for the run's lifetime and discarded on terminal state;
// the log is the run-scoped event list compensation unwinds.
type Run struct {
	ID             string
	Request        schema.ElementRequest
	NormalizedName string
	State          State
	Log            []StepRecord
	Attempts       map[string]int
	StartedAt      time.Time
}

func newRun(req schema.ElementRequest) *Run {
	return &Run{
		ID:             uuid.New().String(),
		Request:        req,
		NormalizedName: schema.Normalize(req.Name),
		State:          StatePending,
		Attempts:       make(map[string]int),
		StartedAt:      time.Now(),
	}
}

// completed reports whether a step is already recorded in the run log.
// Checked before re-issuing any write so a resumed run never repeats a
// step it believes it completed.
func (r *Run) completed(step string) bool {
	for _, rec := range r.Log {
		if rec.Step == step {
			return true
		}
	}
	return false
}

// fieldID returns the created element's identifier from the run log.
func (r *Run) fieldID() string {
	for _, rec := range r.Log {
		if rec.Step == stepCreate {
			return rec.FieldID
		}
	}
	return ""
}

// stepToken derives the deterministic idempotency token for one step of
// one request. A retried call that succeeded upstream but timed out
// locally carries the same token on re-attempt, so the tracker can
// deduplicate it.
func stepToken(normalizedName, step string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("fieldgov/"+normalizedName+"/"+step)).String()
}

// Result is the terminal outcome of one run, reported to the caller.
type Result struct {
	RunID    string           `json:"run_id"`
	State    State            `json:"state"`
	Outcome  policy.Outcome   `json:"outcome,omitempty"`
	Findings []policy.Finding `json:"findings,omitempty"`

	// Collision is set when duplicate detection matched a catalog entry.
	Collision *dedup.Collision `json:"collision,omitempty"`

	// Element is the created schema element on COMPLETE.
	Element *schema.Element `json:"element,omitempty"`

	// Err describes the failure on FAILED.
	Err string `json:"error,omitempty"`

	// CompensationIncomplete is set when one or more compensation steps
	// failed; the warnings list what was left behind.
	CompensationIncomplete bool     `json:"compensation_incomplete,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`
}
