package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// Custom field type identifiers understood by the tracker.
const (
	TypeSelect    = "com.atlassian.jira.plugin.system.customfieldtypes:select"
	TypeTextField = "com.atlassian.jira.plugin.system.customfieldtypes:textfield"
	TypeTextArea  = "com.atlassian.jira.plugin.system.customfieldtypes:textarea"
)

// Field is a custom field as reported by the tracker, including its option
// set and the screens it is bound to.
type Field struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Screens []string `json:"screens,omitempty"`
}

// CreateFieldRequest is the payload for creating a custom field.
type CreateFieldRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

// Issue is the governance-relevant slice of a tracker issue.
type Issue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the issue fields consumed by hygiene sweeps.
type IssueFields struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Assignee    *NamedRef  `json:"assignee"`
	Priority    *NamedRef  `json:"priority"`
	Labels      []string   `json:"labels"`
	Components  []NamedRef `json:"components"`
	Updated     string     `json:"updated"`
}

// NamedRef is a tracker entity referenced by display name.
type NamedRef struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// APIError is a non-2xx response from the tracker.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira: upstream returned %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the error is worth retrying. Rate limiting and
// server-side failures are transient; everything else (bad request,
// conflict, auth) is permanent.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsConflict reports whether the upstream rejected the call because the
// resource already exists or clashes with existing state.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusBadRequest
}

// Common client errors.
var (
	ErrNoCredentials = errors.New("jira: no credentials configured")
	ErrBaseURLEmpty  = errors.New("jira: base URL is required")
)
