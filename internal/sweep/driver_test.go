package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

type remedyCall struct {
	issueKey string
	remedy   policy.RemedyKind
}

type fakeExecutor struct {
	calls   []remedyCall
	failKey string
}

func (f *fakeExecutor) ExecuteRemedy(ctx context.Context, rec schema.RecordMetadata, finding policy.Finding) error {
	if rec.IssueKey == f.failKey {
		return errors.New("tracker unavailable")
	}
	f.calls = append(f.calls, remedyCall{issueKey: rec.IssueKey, remedy: finding.Remedy})
	return nil
}

type fakeSearcher struct {
	jql        string
	maxResults int
	issues     []jira.Issue
	err        error
}

func (f *fakeSearcher) SearchIssues(ctx context.Context, jql string, maxResults int) ([]jira.Issue, error) {
	f.jql = jql
	f.maxResults = maxResults
	return f.issues, f.err
}

func newTestDriver(t *testing.T, executor *fakeExecutor, searcher Searcher) *Driver {
	t.Helper()
	engine, err := policy.NewEngine(policy.HygieneRules(policy.HygieneRuleConfig{
		StaleAfter: 7 * 24 * time.Hour,
	}), nil)
	require.NoError(t, err)
	return NewDriver(engine, executor, searcher, Config{JQL: "statusCategory != Done", BatchLimit: 50}, nil)
}

func compliantRecord(key string) schema.RecordMetadata {
	return schema.RecordMetadata{
		IssueKey:    key,
		Summary:     "Provision staging database replica for reporting",
		Description: "The reporting team needs a read replica in staging before the quarter closes.",
		Assignee:    "dana",
		Priority:    "High",
		Labels:      []string{"infra"},
		UpdatedAt:   time.Now().Add(-time.Hour),
	}
}

func TestSweepBatch_CleanRecordHasNoFindings(t *testing.T) {
	executor := &fakeExecutor{}
	driver := newTestDriver(t, executor, &fakeSearcher{})

	outcomes := driver.SweepBatch(context.Background(), []schema.RecordMetadata{compliantRecord("OPS-1")})

	require.Len(t, outcomes, 1)
	assert.Equal(t, "OPS-1", outcomes[0].IssueKey)
	assert.Empty(t, outcomes[0].Findings)
	assert.Empty(t, executor.calls)
}

func TestSweepBatch_RemediatesBlockingFindings(t *testing.T) {
	executor := &fakeExecutor{}
	driver := newTestDriver(t, executor, &fakeSearcher{})

	rec := compliantRecord("OPS-2")
	rec.Assignee = ""
	rec.Labels = nil

	outcomes := driver.SweepBatch(context.Background(), []schema.RecordMetadata{rec})

	require.Len(t, outcomes, 1)
	assert.ElementsMatch(t,
		[]policy.RemedyKind{policy.RemedyAssignOwner, policy.RemedyApplyLabel},
		outcomes[0].Remediated,
	)
	require.Len(t, executor.calls, 2)
	assert.Equal(t, "OPS-2", executor.calls[0].issueKey)
}

func TestSweepBatch_AdvisoryFindingsAreNotRemediated(t *testing.T) {
	executor := &fakeExecutor{}
	driver := newTestDriver(t, executor, &fakeSearcher{})

	rec := compliantRecord("OPS-3")
	rec.Priority = ""
	rec.Description = "short"

	outcomes := driver.SweepBatch(context.Background(), []schema.RecordMetadata{rec})

	require.Len(t, outcomes, 1)
	assert.NotEmpty(t, outcomes[0].Findings)
	assert.Empty(t, outcomes[0].Remediated)
	assert.Empty(t, executor.calls, "advisory findings carry no automated remedy")
}

func TestSweepBatch_OneFailureDoesNotAbortBatch(t *testing.T) {
	executor := &fakeExecutor{failKey: "OPS-4"}
	driver := newTestDriver(t, executor, &fakeSearcher{})

	broken := compliantRecord("OPS-4")
	broken.Assignee = ""
	alsoBroken := compliantRecord("OPS-5")
	alsoBroken.Labels = nil

	outcomes := driver.SweepBatch(context.Background(), []schema.RecordMetadata{broken, alsoBroken})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "OPS-4", outcomes[0].IssueKey, "record order is preserved")
	assert.Error(t, outcomes[0].Err)
	assert.Empty(t, outcomes[0].Remediated)

	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, []policy.RemedyKind{policy.RemedyApplyLabel}, outcomes[1].Remediated)
}

func TestSweep_PullsBatchFromSearcher(t *testing.T) {
	executor := &fakeExecutor{}
	searcher := &fakeSearcher{issues: []jira.Issue{
		{
			Key: "OPS-6",
			Fields: jira.IssueFields{
				Summary:     "Rotate staging credentials before the audit window opens",
				Description: "Staging credentials are past their rotation deadline.",
				Priority:    &jira.NamedRef{Name: "High"},
				Labels:      []string{"security"},
				Updated:     time.Now().Add(-time.Hour).Format(jiraTimeLayout),
			},
		},
	}}
	driver := newTestDriver(t, executor, searcher)

	outcomes, err := driver.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "statusCategory != Done", searcher.jql)
	assert.Equal(t, 50, searcher.maxResults)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "OPS-6", outcomes[0].IssueKey)

	// Missing assignee is the only blocking violation.
	require.Len(t, executor.calls, 1)
	assert.Equal(t, policy.RemedyAssignOwner, executor.calls[0].remedy)
}

func TestSweep_SearchErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("search unavailable")}
	driver := newTestDriver(t, &fakeExecutor{}, searcher)

	_, err := driver.Sweep(context.Background())
	require.Error(t, err)
}

func TestRecordFromIssue(t *testing.T) {
	updated := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	issue := jira.Issue{
		Key: "OPS-7",
		Fields: jira.IssueFields{
			Summary:     "Archive retired dashboards",
			Description: "Dashboards for the retired service still render in the index.",
			Assignee:    &jira.NamedRef{DisplayName: "Dana Ops"},
			Priority:    &jira.NamedRef{Name: "Low"},
			Labels:      []string{"cleanup"},
			Components:  []jira.NamedRef{{Name: "dashboards"}},
			Updated:     updated.Format(jiraTimeLayout),
		},
	}

	rec := RecordFromIssue(issue)

	assert.Equal(t, "OPS-7", rec.IssueKey)
	assert.Equal(t, "Dana Ops", rec.Assignee)
	assert.Equal(t, "Low", rec.Priority)
	assert.Equal(t, []string{"cleanup"}, rec.Labels)
	assert.Equal(t, []string{"dashboards"}, rec.Components)
	assert.True(t, rec.UpdatedAt.Equal(updated))
}

func TestRecordFromIssue_UnparseableTimestampIsZero(t *testing.T) {
	rec := RecordFromIssue(jira.Issue{
		Key:    "OPS-8",
		Fields: jira.IssueFields{Updated: "not a timestamp"},
	})
	assert.True(t, rec.UpdatedAt.IsZero())
}
