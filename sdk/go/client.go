// Package dutysdk is the Go client for the Dutyline API. It implements the
// completion submission protocol and an optimistic collection cache for
// dashboard-style consumers.
package dutysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Dutyline HTTP API client.
type Client struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, clientID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		ClientID: clientID,
		Timeout:  10 * time.Second,
	}
}

// Duty lifecycle and status values.
const (
	LifecycleActive   = "ACTIVE"
	LifecycleArchived = "ARCHIVED"
	StatusPending     = "PENDING"
	StatusInProgress  = "IN_PROGRESS"
	StatusCompleted   = "COMPLETED"
)

// Duty represents the API duty model.
type Duty struct {
	ID                 string  `json:"id"`
	ClientID           string  `json:"clientId"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	DueDate            string  `json:"dueDate"`
	Frequency          string  `json:"frequency"`
	Lifecycle          string  `json:"lifecycle"`
	Status             string  `json:"status"`
	RequiresAttachment bool    `json:"requiresAttachment,omitempty"`
	NotesRequired      bool    `json:"notesRequired,omitempty"`
	AssignedTo         *string `json:"assignedTo,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	UpdatedAt          string  `json:"updatedAt"`
}

// Event represents a recorded status change.
type Event struct {
	ID             string `json:"id"`
	DutyID         string `json:"dutyId"`
	ClientID       string `json:"clientId"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	Notes          string `json:"notes,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Log is an audit entry.
type Log struct {
	ID        string `json:"id"`
	DutyID    string `json:"dutyId"`
	DutyTitle string `json:"dutyTitle"`
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
	Lifecycle string `json:"lifecycle"`
	Status    string `json:"status"`
}

// TimelineEntry is a log enriched with its duty title.
type TimelineEntry struct {
	ID        string `json:"id"`
	DutyID    string `json:"dutyId"`
	DutyTitle string `json:"dutyTitle"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status"`
	Lifecycle string `json:"lifecycle"`
}

// Summary is the per-client dashboard view.
type Summary struct {
	ClientID  string `json:"clientId"`
	WeekRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"weekRange"`
	Active   []Duty          `json:"active"`
	Archived []Duty          `json:"archived"`
	Timeline []TimelineEntry `json:"timeline"`
	Totals   struct {
		Pending    int `json:"pending"`
		InProgress int `json:"inProgress"`
		Completed  int `json:"completed"`
	} `json:"totals"`
}

// APIError wraps non-2xx responses with the server's message, or the literal
// fallback when the body has no parseable error field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// DefaultErrorMessage is shown when a failure response carries no error field.
const DefaultErrorMessage = "Unable to update duty"

// Submission gating failures. These are raised client-side, before any
// request is sent.
var (
	ErrAttachmentRequired = errors.New("attachment required to complete this duty")
	ErrNotesRequired      = errors.New("notes required to complete this duty")
)

// Attachment is a file included with a completion submission.
type Attachment struct {
	Name    string
	Content io.Reader
}

// Submission is one canonical duty-event request. Encode picks the wire
// format: multipart when an attachment is present, JSON otherwise.
type Submission struct {
	DutyID     string
	ClientID   string
	Status     string
	Lifecycle  string
	Notes      string
	Attachment *Attachment
}

// BuildCompletion computes the toggle target for a duty and enforces gating.
// Completing (the duty is not yet COMPLETED) targets COMPLETED/ARCHIVED and
// requires any declared attachment or notes; reopening targets PENDING/ACTIVE
// and is never gated.
func (c *Client) BuildCompletion(duty Duty, notes string, attachment *Attachment) (Submission, error) {
	sub := Submission{
		DutyID:     duty.ID,
		ClientID:   duty.ClientID,
		Notes:      notes,
		Attachment: attachment,
	}
	if sub.ClientID == "" {
		sub.ClientID = c.ClientID
	}
	completing := duty.Status != StatusCompleted
	if completing {
		if duty.RequiresAttachment && attachment == nil {
			return Submission{}, ErrAttachmentRequired
		}
		if duty.NotesRequired && strings.TrimSpace(notes) == "" {
			return Submission{}, ErrNotesRequired
		}
		sub.Status = StatusCompleted
		sub.Lifecycle = LifecycleArchived
	} else {
		sub.Status = StatusPending
		sub.Lifecycle = LifecycleActive
	}
	return sub, nil
}

// EventResult is the success response of a submission.
type EventResult struct {
	Event Event `json:"event"`
	Duty  Duty  `json:"duty"`
}

// Submit sends the duty event. The caller must treat any error as "nothing
// changed server-side" and decide on retry itself.
func (c *Client) Submit(ctx context.Context, sub Submission) (EventResult, error) {
	var (
		body        bytes.Buffer
		contentType string
	)
	if sub.Attachment != nil {
		mw := multipart.NewWriter(&body)
		fields := map[string]string{
			"dutyId":    sub.DutyID,
			"clientId":  sub.ClientID,
			"status":    sub.Status,
			"lifecycle": sub.Lifecycle,
		}
		if sub.Notes != "" {
			fields["notes"] = sub.Notes
		}
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				return EventResult{}, err
			}
		}
		part, err := mw.CreateFormFile("attachment", sub.Attachment.Name)
		if err != nil {
			return EventResult{}, err
		}
		if sub.Attachment.Content != nil {
			if _, err := io.Copy(part, sub.Attachment.Content); err != nil {
				return EventResult{}, err
			}
		}
		if err := mw.Close(); err != nil {
			return EventResult{}, err
		}
		contentType = mw.FormDataContentType()
	} else {
		payload := map[string]string{
			"dutyId":    sub.DutyID,
			"clientId":  sub.ClientID,
			"status":    sub.Status,
			"lifecycle": sub.Lifecycle,
		}
		if sub.Notes != "" {
			payload["notes"] = sub.Notes
		}
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return EventResult{}, err
		}
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/api/duty-events", &body)
	if err != nil {
		return EventResult{}, err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return EventResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return EventResult{}, translateError(resp)
	}
	var result EventResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return EventResult{}, err
	}
	return result, nil
}

// FetchSummary returns the current dashboard view for the client.
func (c *Client) FetchSummary(ctx context.Context) (Summary, error) {
	endpoint := fmt.Sprintf("%s/api/duties?clientId=%s", c.base(), url.QueryEscape(c.ClientID))
	var summary Summary
	if err := c.getJSON(ctx, endpoint, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// FetchLogs returns the client's logs, optionally filtered by lifecycle.
func (c *Client) FetchLogs(ctx context.Context, lifecycle string) ([]Log, error) {
	endpoint := fmt.Sprintf("%s/api/duty-logs?clientId=%s", c.base(), url.QueryEscape(c.ClientID))
	if lifecycle != "" {
		endpoint += "&lifecycle=" + url.QueryEscape(lifecycle)
	}
	var resp struct {
		Logs []Log `json:"logs"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// ExportLogsCSV downloads the CSV export verbatim.
func (c *Client) ExportLogsCSV(ctx context.Context, lifecycle string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/duty-logs?clientId=%s&format=csv", c.base(), url.QueryEscape(c.ClientID))
	if lifecycle != "" {
		endpoint += "&lifecycle=" + url.QueryEscape(lifecycle)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, translateError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return translateError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// translateError maps a failure response to a user-facing message: the body's
// error field when present, the literal default otherwise.
func translateError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: DefaultErrorMessage}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
