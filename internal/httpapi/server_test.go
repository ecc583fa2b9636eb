package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/policy"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
	"github.com/fyrsmithlabs/fieldgov/internal/sweep"
	"github.com/fyrsmithlabs/fieldgov/internal/worker"
)

const testSecret = "sweep-the-leg"

type fakeQueue struct {
	requests []schema.ElementRequest
	err      error
}

func (f *fakeQueue) Enqueue(req schema.ElementRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

type fakeSweeper struct {
	outcomes []sweep.Outcome
	err      error
	called   bool
}

func (f *fakeSweeper) Sweep(ctx context.Context) ([]sweep.Outcome, error) {
	f.called = true
	return f.outcomes, f.err
}

func newTestServer(t *testing.T, queue *fakeQueue, sweeper Sweeper) *Server {
	t.Helper()
	s, err := NewServer(queue, sweeper, zap.NewNop(), &Config{
		Host:   "localhost",
		Port:   0,
		Secret: testSecret,
	})
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresSecret(t *testing.T) {
	_, err := NewServer(&fakeQueue{}, nil, zap.NewNop(), &Config{Host: "localhost"})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFieldRequest_QueuesValidRequest(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(t, queue, nil)

	body := `{"name":"Customer Priority","kind":"choice","options":["High","Low"],"issue_key":"OPS-1"}`
	rec := doRequest(s, http.MethodPost, "/hooks/field-request", body, testSecret)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.requests, 1)
	assert.Equal(t, "Customer Priority", queue.requests[0].Name)
	assert.Equal(t, schema.KindChoice, queue.requests[0].Kind)
	assert.Equal(t, []string{"High", "Low"}, queue.requests[0].Options)

	var resp FieldRequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "OPS-1", resp.IssueKey)
}

func TestFieldRequest_RejectsMissingSecret(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(t, queue, nil)

	body := `{"name":"Customer Priority","kind":"choice"}`
	rec := doRequest(s, http.MethodPost, "/hooks/field-request", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodPost, "/hooks/field-request", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, queue.requests)
}

func TestFieldRequest_RejectsInvalidKind(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(t, queue, nil)

	body := `{"name":"Customer Priority","kind":"dropdown"}`
	rec := doRequest(s, http.MethodPost, "/hooks/field-request", body, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.requests)
}

func TestFieldRequest_RejectsMissingName(t *testing.T) {
	s := newTestServer(t, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPost, "/hooks/field-request", `{"kind":"text"}`, testSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFieldRequest_QueueFullIsBackpressure(t *testing.T) {
	queue := &fakeQueue{err: worker.ErrQueueFull}
	s := newTestServer(t, queue, nil)

	body := `{"name":"Customer Priority","kind":"choice","options":["High"]}`
	rec := doRequest(s, http.MethodPost, "/hooks/field-request", body, testSecret)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGovernanceSweep_ReportsCounts(t *testing.T) {
	sweeper := &fakeSweeper{outcomes: []sweep.Outcome{
		{IssueKey: "OPS-1"},
		{
			IssueKey:   "OPS-2",
			Findings:   []policy.Finding{{RuleID: "missing-assignee", Severity: policy.SeverityBlocking}},
			Remediated: []policy.RemedyKind{policy.RemedyAssignOwner},
		},
	}}
	s := newTestServer(t, &fakeQueue{}, sweeper)

	rec := doRequest(s, http.MethodPost, "/hooks/governance-sweep", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sweeper.called)

	var resp SweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, 1, resp.Violations)
	assert.Equal(t, 1, resp.Remediated)
}

func TestGovernanceSweep_UpstreamFailure(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("search unavailable")}
	s := newTestServer(t, &fakeQueue{}, sweeper)

	rec := doRequest(s, http.MethodPost, "/hooks/governance-sweep", "", testSecret)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGovernanceSweep_NotConfigured(t *testing.T) {
	s := newTestServer(t, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPost, "/hooks/governance-sweep", "", testSecret)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
