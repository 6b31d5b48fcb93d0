package settle

import (
	"context"
	"net/http"
	"time"

	payrelay "github.com/payrelay/payrelay-go"
)

// HealthStatus is the result of a facilitator liveness probe.
type HealthStatus struct {
	// Healthy is true when the probe returned HTTP 200.
	Healthy bool `json:"healthy"`

	// Status is the HTTP status code, or 0 on transport failure.
	Status int `json:"status"`

	// Timestamp is when the probe completed, RFC 3339.
	Timestamp string `json:"timestamp,omitempty"`

	// Error carries the transport failure message when Status is 0.
	Error string `json:"error,omitempty"`
}

// CheckHealth probes a facilitator endpoint. It has no side effects and
// short-circuits to healthy:false on any transport error rather than
// returning one.
func CheckHealth(ctx context.Context, client *http.Client, endpoint string) HealthStatus {
	if client == nil {
		client = http.DefaultClient
	}

	probeCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, payrelay.DefaultTimeouts.HealthTimeout)
		defer cancel()
	}

	status := HealthStatus{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	status.Status = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	return status
}
