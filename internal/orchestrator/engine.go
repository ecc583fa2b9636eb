package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/catalog"
	"github.com/fyrsmithlabs/fieldgov/internal/dedup"
	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

// Finding IDs the orchestrator adds from duplicate detection, alongside
// the policy rule IDs.
const (
	findingDuplicate       = "duplicate-name"
	findingLikelyDuplicate = "likely-duplicate"
)

// Upstream is the tracker write surface the orchestrator drives. Every
// write accepts an idempotency token; *jira.Client satisfies this.
type Upstream interface {
	CreateField(ctx context.Context, req jira.CreateFieldRequest, token string) (jira.Field, error)
	AddFieldOption(ctx context.Context, fieldID, option, token string) error
	AddFieldToScreen(ctx context.Context, screenID, fieldID, token string) error
	DeleteField(ctx context.Context, fieldID string) error
	RemoveFieldOption(ctx context.Context, fieldID, option string) error
	RemoveFieldFromScreen(ctx context.Context, screenID, fieldID string) error
	EditIssue(ctx context.Context, key string, fields map[string]any, token string) error
	AddComment(ctx context.Context, key, text, token string) error
}

// Config tunes the orchestration engine.
type Config struct {
	// Screens are the default screen IDs new elements are bound to when
	// the request names none.
	Screens []string

	// DefaultOwner and DefaultLabel feed the sweep remediation path.
	DefaultOwner string
	DefaultLabel string

	// Retry is the write retry policy.
	Retry RetryConfig
}

// Engine validates schema change requests and executes the provisioning
// sequence against the tracker.
type Engine struct {
	catalog  *catalog.Reader
	detector *dedup.Detector
	policy   *policy.Engine
	upstream Upstream
	cfg      Config
	locks    *nameLocks
	logger   *zap.Logger
	metrics  *Metrics
}

// NewEngine creates an orchestration engine. The metrics tracker is
// optional and set afterwards via SetMetrics.
func NewEngine(cat *catalog.Reader, detector *dedup.Detector, policyEngine *policy.Engine, upstream Upstream, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Retry.ApplyDefaults()
	return &Engine{
		catalog:  cat,
		detector: detector,
		policy:   policyEngine,
		upstream: upstream,
		cfg:      cfg,
		locks:    newNameLocks(),
		logger:   logger,
	}
}

// SetMetrics sets the metrics tracker for this engine.
func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// ValidateAndProvision takes one request through the full state machine
// and returns its terminal result.
//
// Rejection is not an error: the result carries the findings and the
// returned error is nil. A non-nil error always accompanies a FAILED
// result.
func (e *Engine) ValidateAndProvision(ctx context.Context, req schema.ElementRequest) (*Result, error) {
	run := newRun(req)
	logger := e.logger.With(
		zap.String("run_id", run.ID),
		zap.String("issue_key", req.IssueKey),
	)

	release, waited, err := e.locks.acquire(ctx, run.NormalizedName)
	if err != nil {
		return e.fail(run, fmt.Errorf("acquiring name lock: %w", err)), err
	}
	defer release()

	run.State = StateValidating

	// A second acquirer re-validates against a freshly forced-refreshed
	// snapshot: the first holder may have just created this very name.
	snap, err := e.catalog.Fetch(ctx, waited)
	if err != nil {
		return e.fail(run, err), err
	}

	collision := e.detector.Check(req, snap)
	evaluation := e.policy.Evaluate(policy.RequestSubject(&req))

	findings := evaluation.Findings
	outcome := evaluation.Outcome
	switch collision.Verdict {
	case dedup.Duplicate:
		findings = append(findings, policy.Finding{
			RuleID:   findingDuplicate,
			Severity: policy.SeverityBlocking,
			Message:  fmt.Sprintf("Duplicate: %q", collision.Match.Name),
		})
		outcome = policy.OutcomeRejected
	case dedup.LikelyDuplicate:
		findings = append(findings, policy.Finding{
			RuleID:   findingLikelyDuplicate,
			Severity: policy.SeverityAdvisory,
			Message:  fmt.Sprintf("%s (similarity %.2f)", collision.Describe(), collision.Similarity),
		})
		if outcome == policy.OutcomeApproved {
			outcome = policy.OutcomeNeedsReview
		}
	}

	if outcome == policy.OutcomeRejected {
		run.State = StateRejected
		e.observe(run)
		logger.Info("request rejected",
			zap.String("state", string(run.State)),
			zap.Int("findings", len(findings)),
		)
		return &Result{
			RunID:     run.ID,
			State:     StateRejected,
			Outcome:   outcome,
			Findings:  findings,
			Collision: collisionRef(collision),
		}, nil
	}

	// Write sequence. Every step consults the run log first and carries a
	// deterministic token, so a resume never duplicates work upstream.
	element, err := e.provision(ctx, run, logger)
	if err != nil {
		result := e.fail(run, err)
		result.Outcome = outcome
		result.Findings = findings
		e.compensate(ctx, run, result, logger)
		return result, err
	}

	run.State = StateComplete
	e.observe(run)

	// The catalog is stale the moment a field is created.
	e.catalog.Invalidate()

	logger.Info("request provisioned",
		zap.String("element_id", element.ID),
		zap.Int("options", len(element.Options)),
		zap.Int("screens", len(element.Screens)),
	)

	return &Result{
		RunID:     run.ID,
		State:     StateComplete,
		Outcome:   outcome,
		Findings:  findings,
		Collision: collisionRef(collision),
		Element:   element,
	}, nil
}

// provision executes the write-performing states in order:
// CREATING -> CONFIGURING_OPTIONS -> BINDING.
func (e *Engine) provision(ctx context.Context, run *Run, logger *zap.Logger) (*schema.Element, error) {
	req := run.Request

	run.State = StateCreating
	if err := e.executeStep(ctx, run, stepCreate, logger, func(token string) error {
		created, err := e.upstream.CreateField(ctx, jira.CreateFieldRequest{
			Name:        req.Name,
			Description: "Provisioned by fieldgov for " + req.IssueKey,
			Type:        catalog.TypeForKind(req.Kind),
		}, token)
		if err != nil {
			return err
		}
		run.Log = append(run.Log, StepRecord{
			Step:    stepCreate,
			Token:   token,
			FieldID: created.ID,
			At:      time.Now(),
		})
		return nil
	}); err != nil {
		return nil, err
	}

	fieldID := run.fieldID()

	if len(req.Options) > 0 {
		run.State = StateConfiguringOptions
		for _, option := range req.Options {
			option := option
			step := stepOption + option
			if err := e.executeStep(ctx, run, step, logger, func(token string) error {
				if err := e.upstream.AddFieldOption(ctx, fieldID, option, token); err != nil {
					return err
				}
				run.Log = append(run.Log, StepRecord{
					Step:    step,
					Token:   token,
					FieldID: fieldID,
					Option:  option,
					At:      time.Now(),
				})
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	screens := req.Screens
	if len(screens) == 0 {
		screens = e.cfg.Screens
	}

	run.State = StateBinding
	for _, screenID := range screens {
		screenID := screenID
		step := stepBind + screenID
		if err := e.executeStep(ctx, run, step, logger, func(token string) error {
			if err := e.upstream.AddFieldToScreen(ctx, screenID, fieldID, token); err != nil {
				return err
			}
			run.Log = append(run.Log, StepRecord{
				Step:     step,
				Token:    token,
				FieldID:  fieldID,
				ScreenID: screenID,
				At:       time.Now(),
			})
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return &schema.Element{
		ID:             fieldID,
		Name:           req.Name,
		NormalizedName: run.NormalizedName,
		Kind:           req.Kind,
		Options:        req.Options,
		Screens:        screens,
	}, nil
}

// executeStep runs one write step under the retry policy, skipping steps
// the run log already records as completed.
func (e *Engine) executeStep(ctx context.Context, run *Run, step string, logger *zap.Logger, op func(token string) error) error {
	if run.completed(step) {
		logger.Debug("step already completed, skipping", zap.String("step", step))
		return nil
	}

	token := stepToken(run.NormalizedName, step)
	attempts, err := retryUpstream(ctx, e.cfg.Retry, logger, step, func() error {
		return op(token)
	})
	run.Attempts[step] = attempts

	if e.metrics != nil && attempts > 1 {
		e.metrics.RecordStepRetries(step, attempts-1)
	}
	if err != nil {
		return fmt.Errorf("step %s: %w", step, err)
	}
	return nil
}

// compensate undoes recorded steps in reverse order after a write failure.
// Best effort only: a compensation failure is a warning, never an
// escalation, because an orphaned disabled element is preferable to
// blocking the operator.
func (e *Engine) compensate(ctx context.Context, run *Run, result *Result, logger *zap.Logger) {
	if len(run.Log) == 0 {
		return
	}

	// Compensation still runs when the triggering failure was a timeout
	// that canceled the request context.
	ctx = context.WithoutCancel(ctx)

	for i := len(run.Log) - 1; i >= 0; i-- {
		rec := run.Log[i]
		var err error
		switch {
		case rec.ScreenID != "":
			err = e.upstream.RemoveFieldFromScreen(ctx, rec.ScreenID, rec.FieldID)
		case rec.Option != "":
			err = e.upstream.RemoveFieldOption(ctx, rec.FieldID, rec.Option)
		case rec.Step == stepCreate:
			err = e.upstream.DeleteField(ctx, rec.FieldID)
		}

		if err != nil {
			result.CompensationIncomplete = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("compensation incomplete: could not undo %s: %v", rec.Step, err))
			logger.Warn("compensation step failed",
				zap.String("step", rec.Step),
				zap.Error(err),
			)
			if e.metrics != nil {
				e.metrics.RecordCompensation("failed")
			}
			continue
		}

		if e.metrics != nil {
			e.metrics.RecordCompensation("undone")
		}
		logger.Info("compensated step", zap.String("step", rec.Step))
	}

	run.Log = nil
}

// ExecuteRemedy applies one hygiene remediation to a record through the
// tracker write path, under the same retry policy as provisioning steps.
func (e *Engine) ExecuteRemedy(ctx context.Context, rec schema.RecordMetadata, finding policy.Finding) error {
	token := stepToken("remedy/"+rec.IssueKey, string(finding.Remedy))

	var op func() error
	switch finding.Remedy {
	case policy.RemedyAssignOwner:
		op = func() error {
			return e.upstream.EditIssue(ctx, rec.IssueKey, map[string]any{
				"assignee": map[string]string{"name": e.cfg.DefaultOwner},
			}, token)
		}
	case policy.RemedyApplyLabel:
		op = func() error {
			return e.upstream.EditIssue(ctx, rec.IssueKey, map[string]any{
				"labels": []string{e.cfg.DefaultLabel},
			}, token)
		}
	case policy.RemedyNudge:
		op = func() error {
			return e.upstream.AddComment(ctx, rec.IssueKey,
				"Governance reminder: "+finding.Message+". Please bring this ticket back into compliance.", token)
		}
	default:
		return fmt.Errorf("no executable remedy for finding %s", finding.RuleID)
	}

	_, err := retryUpstream(ctx, e.cfg.Retry, e.logger, "remedy:"+string(finding.Remedy), op)
	if err != nil {
		return fmt.Errorf("remedy %s for %s: %w", finding.Remedy, rec.IssueKey, err)
	}
	return nil
}

// fail moves the run to FAILED and builds the failure result.
func (e *Engine) fail(run *Run, err error) *Result {
	run.State = StateFailed
	e.observe(run)
	return &Result{
		RunID: run.ID,
		State: StateFailed,
		Err:   err.Error(),
	}
}

func (e *Engine) observe(run *Run) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordRun(run.State, time.Since(run.StartedAt))
}

func collisionRef(c dedup.Collision) *dedup.Collision {
	if c.Verdict == dedup.NoCollision {
		return nil
	}
	return &c
}
