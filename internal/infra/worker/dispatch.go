package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"gramflow/internal/resilience/failure"
)

// HTTPDispatcher delivers jobs as JSON POSTs to a downstream endpoint.
// Responses below 500 are policy errors: the downstream rejected the job and
// retrying would only repeat the rejection. 5xx and transport failures are
// retryable.
type HTTPDispatcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDispatcher creates a dispatcher posting to the given endpoint.
func NewHTTPDispatcher(endpoint string) *HTTPDispatcher {
	return &HTTPDispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Dispatch implements Dispatcher.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, job Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", job.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Kind", job.Kind)
	req.Header.Set("X-Job-ID", job.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", job.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode < 500:
		return &failure.PolicyError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("job %s rejected by %s", job.ID, d.endpoint),
		}
	default:
		return fmt.Errorf("dispatch %s: upstream returned %d", job.ID, resp.StatusCode)
	}
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
