// Package oracle is the Oracle Bridge of §4.2: registering competitions
// with the external weather oracle, publishing the finalized entry set,
// and polling for attestation once the observation window has closed.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/5day4cast/coordinator/internal/domain"
)

// Client talks to the oracle's three endpoints (§4.2).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Client against baseURL with a 10s per-attempt
// timeout, matching §5's "per-attempt timeout (default 10s)".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type createEventRequest struct {
	EventID               string              `json:"event_id"`
	Locations             []domain.Location   `json:"locations"`
	StartObservationDate  time.Time           `json:"start_observation_date"`
	EndObservationDate    time.Time           `json:"end_observation_date"`
	NumberOfValuesPerEntry int                `json:"number_of_values_per_entry"`
}

// CreateEvent registers a competition with the oracle and returns its
// event_announcement. A 409 response (the event already exists, e.g. a
// retry after a crash mid-call) is treated as success per §4.2, so the
// caller gets the announcement either way.
func (c *Client) CreateEvent(ctx context.Context, eventID string, locations []domain.Location, startObs, endObs time.Time, valuesPerEntry int) (*domain.EventAnnouncement, error) {
	body, err := json.Marshal(createEventRequest{
		EventID:                eventID,
		Locations:              locations,
		StartObservationDate:   startObs,
		EndObservationDate:     endObs,
		NumberOfValuesPerEntry: valuesPerEntry,
	})
	if err != nil {
		return nil, err
	}

	var announcement domain.EventAnnouncement
	if err := c.do(ctx, http.MethodPost, "/events", body, &announcement, true); err != nil {
		return nil, fmt.Errorf("creating oracle event %s: %w", eventID, err)
	}
	return &announcement, nil
}

// PublishEntries sends the frozen entry count (and any oracle-required
// per-entry shape) so the oracle can verify it against the announcement
// before attestation.
func (c *Client) PublishEntries(ctx context.Context, eventID string, entryCount int) error {
	body, err := json.Marshal(map[string]int{"entry_count": entryCount})
	if err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, fmt.Sprintf("/events/%s/entries", eventID), body, nil, true)
}

// EventStatus is the §4.2 GET /events/{id} response.
type EventStatus struct {
	Attested    bool               `json:"attested"`
	Attestation *domain.Attestation `json:"attestation,omitempty"`
}

// GetEventStatus polls for attestation. Returns a status with
// Attested=false if the oracle hasn't attested yet — this is a semantic
// "Stay" outcome per §7, not an error.
func (c *Client) GetEventStatus(ctx context.Context, eventID string) (*EventStatus, error) {
	var status EventStatus
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/events/%s", eventID), nil, &status, false); err != nil {
		return nil, fmt.Errorf("polling oracle event %s: %w", eventID, err)
	}
	return &status, nil
}

// do issues one HTTP request. If idempotentCreate is true, a 409 response
// is read and decoded the same as a 200 (§4.2 "409 already exists, treated
// as success"); any other 4xx fails the call outright, and 5xx/network
// errors are returned as retryable errors for the caller's backoff loop
// to classify.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}, idempotentCreate bool) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)

	case resp.StatusCode == http.StatusConflict && idempotentCreate:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)

	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("oracle returned status %d", resp.StatusCode)}

	default:
		return fmt.Errorf("oracle rejected request: status %d", resp.StatusCode)
	}
}

// TransientError wraps a network or 5xx failure so callers can tell a
// retryable error (§7 taxonomy) apart from a semantic or protocol one.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }
