package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"makequeue-backend/config"
)

// EventChecker validates the opaque event link a reservation may be tied to.
type EventChecker interface {
	EventExists(ctx context.Context, eventLink string) (bool, error)
}

// HTTPEventChecker asks the scheduling collaborator whether an event exists.
type HTTPEventChecker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEventChecker creates an event checker from configuration.
func NewHTTPEventChecker(cfg *config.EventsConfig) *HTTPEventChecker {
	return &HTTPEventChecker{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// EventExists reports whether the collaborator knows the event.
func (c *HTTPEventChecker) EventExists(ctx context.Context, eventLink string) (bool, error) {
	reqURL := fmt.Sprintf("%s/events/%s", c.baseURL, url.PathEscape(eventLink))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("event lookup for %q failed: %w", eventLink, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("event lookup for %q returned status %d", eventLink, resp.StatusCode)
	}
}
