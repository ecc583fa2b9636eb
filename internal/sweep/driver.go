// Package sweep runs governance hygiene checks over existing tracker
// records and remediates blocking violations through the orchestrator's
// write path.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

// jiraTimeLayout is the timestamp format the tracker uses in issue
// payloads.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// RemedyExecutor applies one remediation to a record. *orchestrator.Engine
// satisfies this.
type RemedyExecutor interface {
	ExecuteRemedy(ctx context.Context, rec schema.RecordMetadata, finding policy.Finding) error
}

// Searcher is the tracker query the sweep pulls its batch from.
type Searcher interface {
	SearchIssues(ctx context.Context, jql string, maxResults int) ([]jira.Issue, error)
}

// Outcome is the sweep result for one record.
type Outcome struct {
	IssueKey string           `json:"issue_key"`
	Findings []policy.Finding `json:"findings,omitempty"`

	// Remediated lists the remedies that were applied successfully.
	Remediated []policy.RemedyKind `json:"remediated,omitempty"`

	// Err is the first remediation failure for this record, if any.
	Err error `json:"-"`
}

// Config tunes one sweep run.
type Config struct {
	JQL        string
	BatchLimit int
}

// Driver evaluates hygiene rules per record and executes the mapped
// remediations.
type Driver struct {
	policy   *policy.Engine
	executor RemedyExecutor
	searcher Searcher
	cfg      Config
	logger   *zap.Logger
	metrics  *Metrics
}

// NewDriver creates a sweep driver.
func NewDriver(policyEngine *policy.Engine, executor RemedyExecutor, searcher Searcher, cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		policy:   policyEngine,
		executor: executor,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetMetrics sets the metrics tracker for this driver.
func (d *Driver) SetMetrics(m *Metrics) {
	d.metrics = m
}

// Sweep pulls a batch from the tracker and runs it through SweepBatch.
func (d *Driver) Sweep(ctx context.Context) ([]Outcome, error) {
	issues, err := d.searcher.SearchIssues(ctx, d.cfg.JQL, d.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}

	records := make([]schema.RecordMetadata, 0, len(issues))
	for _, issue := range issues {
		records = append(records, RecordFromIssue(issue))
	}

	return d.SweepBatch(ctx, records), nil
}

// SweepBatch evaluates every record in order and remediates blocking
// findings. A remediation failure is recorded on that record's outcome and
// the batch continues; one bad ticket never aborts the sweep.
func (d *Driver) SweepBatch(ctx context.Context, records []schema.RecordMetadata) []Outcome {
	outcomes := make([]Outcome, 0, len(records))

	for i := range records {
		rec := &records[i]
		outcome := Outcome{IssueKey: rec.IssueKey}

		result := d.policy.Evaluate(policy.RecordSubject(rec))
		outcome.Findings = result.Findings

		for _, finding := range result.Blocking() {
			if finding.Remedy == policy.RemedyNone {
				continue
			}
			if err := d.executor.ExecuteRemedy(ctx, *rec, finding); err != nil {
				d.logger.Warn("remediation failed",
					zap.String("issue_key", rec.IssueKey),
					zap.String("rule_id", finding.RuleID),
					zap.Error(err),
				)
				if outcome.Err == nil {
					outcome.Err = err
				}
				if d.metrics != nil {
					d.metrics.RecordRemediation(string(finding.Remedy), "failed")
				}
				continue
			}
			outcome.Remediated = append(outcome.Remediated, finding.Remedy)
			if d.metrics != nil {
				d.metrics.RecordRemediation(string(finding.Remedy), "applied")
			}
		}

		if d.metrics != nil {
			d.metrics.RecordSwept(len(outcome.Findings) > 0)
		}
		outcomes = append(outcomes, outcome)
	}

	d.logger.Info("sweep batch complete",
		zap.Int("records", len(records)),
		zap.Int("outcomes", len(outcomes)),
	)

	return outcomes
}

// RecordFromIssue converts a tracker issue into record metadata for rule
// evaluation. An unparseable update timestamp is left zero; the staleness
// rule skips zero timestamps rather than guessing.
func RecordFromIssue(issue jira.Issue) schema.RecordMetadata {
	rec := schema.RecordMetadata{
		IssueKey:    issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Labels:      issue.Fields.Labels,
	}
	if issue.Fields.Assignee != nil {
		rec.Assignee = issue.Fields.Assignee.DisplayName
		if rec.Assignee == "" {
			rec.Assignee = issue.Fields.Assignee.Name
		}
	}
	if issue.Fields.Priority != nil {
		rec.Priority = issue.Fields.Priority.Name
	}
	for _, c := range issue.Fields.Components {
		rec.Components = append(rec.Components, c.Name)
	}
	if issue.Fields.Updated != "" {
		if ts, err := time.Parse(jiraTimeLayout, issue.Fields.Updated); err == nil {
			rec.UpdatedAt = ts
		}
	}
	return rec
}
