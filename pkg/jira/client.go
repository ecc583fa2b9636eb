// Package jira provides a minimal REST client for the tracking system's
// administrative API: custom field listing and creation, field-context
// options, screen bindings, and the issue read/write calls used by
// governance sweeps.
//
// All write calls accept an idempotency token forwarded as a request
// header so that a locally timed-out call that actually succeeded
// upstream can be retried safely.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const idempotencyHeader = "X-Idempotency-Key"

// Config holds tracker connection settings.
type Config struct {
	// BaseURL is the tracker root, e.g. "https://example.atlassian.net".
	BaseURL string

	// Email + APIToken authenticate against Cloud (Basic auth).
	Email    string
	APIToken string

	// BearerToken authenticates against Server/DC (PAT). Used only when
	// Email/APIToken are not set.
	BearerToken string

	// Timeout bounds every request. Default: 15s.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls. Default: 10.
	RequestsPerSecond float64
}

// Client is a rate-limited tracker API client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	// auth applied to every request
	email, apiToken, bearer string
}

// NewClient creates a tracker client from config.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLEmpty
	}
	if (cfg.Email == "" || cfg.APIToken == "") && cfg.BearerToken == "" {
		return nil, ErrNoCredentials
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 10
	}

	return &Client{
		baseURL:  trimTrailingSlash(cfg.BaseURL),
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:   logger,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		bearer:   cfg.BearerToken,
	}, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// page is the tracker's generic paged response envelope.
type page[T any] struct {
	Values []T `json:"values"`
}

type idRef struct {
	ID string `json:"id"`
}

type optionRef struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type fieldDetail struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
	Schema struct {
		Custom string `json:"custom"`
	} `json:"schema"`
}

// ListFields lists all custom fields, resolving the option set for select
// fields and the screens each field is bound to.
func (c *Client) ListFields(ctx context.Context) ([]Field, error) {
	var details []fieldDetail
	if err := c.do(ctx, http.MethodGet, "/rest/api/3/field", nil, &details, ""); err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(details))
	for _, d := range details {
		if !d.Custom {
			continue
		}
		f := Field{ID: d.ID, Name: d.Name, Type: d.Schema.Custom}

		if d.Schema.Custom == TypeSelect {
			options, err := c.fieldOptions(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			for _, o := range options {
				f.Options = append(f.Options, o.Value)
			}
		}

		var screens page[idRef]
		if err := c.do(ctx, http.MethodGet, "/rest/api/3/field/"+d.ID+"/screens", nil, &screens, ""); err != nil {
			return nil, err
		}
		for _, s := range screens.Values {
			f.Screens = append(f.Screens, s.ID)
		}

		fields = append(fields, f)
	}

	return fields, nil
}

// CreateField creates a custom field and returns the created field.
func (c *Client) CreateField(ctx context.Context, req CreateFieldRequest, token string) (Field, error) {
	var created Field
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/field", req, &created, token); err != nil {
		return Field{}, err
	}
	created.Type = req.Type
	return created, nil
}

// AddFieldOption appends an option to a select field's default context.
func (c *Client) AddFieldOption(ctx context.Context, fieldID, option, token string) error {
	ctxID, err := c.firstContext(ctx, fieldID)
	if err != nil {
		return err
	}

	body := map[string]any{
		"options": []map[string]string{{"value": option}},
	}
	path := fmt.Sprintf("/rest/api/3/field/%s/context/%s/option", fieldID, ctxID)
	return c.do(ctx, http.MethodPost, path, body, nil, token)
}

// RemoveFieldOption deletes an option from a select field by value.
// Used for compensation; a missing option is not an error.
func (c *Client) RemoveFieldOption(ctx context.Context, fieldID, option string) error {
	ctxID, err := c.firstContext(ctx, fieldID)
	if err != nil {
		return err
	}

	options, err := c.fieldOptions(ctx, fieldID)
	if err != nil {
		return err
	}
	for _, o := range options {
		if o.Value != option {
			continue
		}
		path := fmt.Sprintf("/rest/api/3/field/%s/context/%s/option/%s", fieldID, ctxID, o.ID)
		return c.do(ctx, http.MethodDelete, path, nil, nil, "")
	}
	return nil
}

// AddFieldToScreen adds a field to a screen's default tab.
func (c *Client) AddFieldToScreen(ctx context.Context, screenID, fieldID, token string) error {
	path := fmt.Sprintf("/rest/api/3/screens/%s/addToDefault/%s", screenID, fieldID)
	return c.do(ctx, http.MethodPut, path, nil, nil, token)
}

// RemoveFieldFromScreen removes a field from a screen's first tab.
// Used for compensation.
func (c *Client) RemoveFieldFromScreen(ctx context.Context, screenID, fieldID string) error {
	var tabs []idRef
	if err := c.do(ctx, http.MethodGet, "/rest/api/3/screens/"+screenID+"/tabs", nil, &tabs, ""); err != nil {
		return err
	}
	if len(tabs) == 0 {
		return nil
	}
	path := fmt.Sprintf("/rest/api/3/screens/%s/tabs/%s/fields/%s", screenID, tabs[0].ID, fieldID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, "")
}

// DeleteField moves a custom field to trash. Used for compensation.
func (c *Client) DeleteField(ctx context.Context, fieldID string) error {
	return c.do(ctx, http.MethodDelete, "/rest/api/3/field/"+fieldID, nil, nil, "")
}

// SearchIssues runs a JQL search and returns matching issues.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	body := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     []string{"summary", "description", "assignee", "priority", "labels", "components", "updated"},
	}

	var resp struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/search", body, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}

// EditIssue updates issue fields.
func (c *Client) EditIssue(ctx context.Context, key string, fields map[string]any, token string) error {
	body := map[string]any{"fields": fields}
	return c.do(ctx, http.MethodPut, "/rest/api/3/issue/"+key, body, nil, token)
}

// AddComment posts a plain-text comment to an issue, wrapped in the
// document format the tracker expects.
func (c *Client) AddComment(ctx context.Context, key, text string, token string) error {
	body := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{
				{
					"type":    "paragraph",
					"content": []map[string]any{{"type": "text", "text": text}},
				},
			},
		},
	}
	return c.do(ctx, http.MethodPost, "/rest/api/3/issue/"+key+"/comment", body, nil, token)
}

// firstContext returns the ID of the field's first context. Options live
// under contexts, so option reads and writes resolve this first.
func (c *Client) firstContext(ctx context.Context, fieldID string) (string, error) {
	var contexts page[idRef]
	if err := c.do(ctx, http.MethodGet, "/rest/api/3/field/"+fieldID+"/context", nil, &contexts, ""); err != nil {
		return "", err
	}
	if len(contexts.Values) == 0 {
		return "", &APIError{StatusCode: http.StatusNotFound, Message: "field " + fieldID + " has no contexts"}
	}
	return contexts.Values[0].ID, nil
}

func (c *Client) fieldOptions(ctx context.Context, fieldID string) ([]optionRef, error) {
	ctxID, err := c.firstContext(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	var options page[optionRef]
	path := fmt.Sprintf("/rest/api/3/field/%s/context/%s/option", fieldID, ctxID)
	if err := c.do(ctx, http.MethodGet, path, nil, &options, ""); err != nil {
		return nil, err
	}
	return options.Values, nil
}

// do executes one API call with rate limiting, auth, and error
// classification. A non-empty token is forwarded as the idempotency key.
func (c *Client) do(ctx context.Context, method, path string, body, out any, token string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("jira: rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jira: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("jira: build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(idempotencyHeader, token)
	}
	if c.email != "" && c.apiToken != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	c.logger.Debug("api call", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("jira: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("jira: decode response: %w", err)
		}
	}

	return nil
}

// errorMessage extracts the tracker's error text from a failure payload.
func errorMessage(payload []byte) string {
	var body struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if len(body.ErrorMessages) > 0 {
			return body.ErrorMessages[0]
		}
		for field, msg := range body.Errors {
			return field + ": " + msg
		}
	}
	if len(payload) > 200 {
		payload = payload[:200]
	}
	return string(payload)
}
