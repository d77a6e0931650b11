package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/api"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// DefaultTimeout bounds every request to the intake endpoint.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 4096

// IntakeClient implements interfaces.Transport over HTTP.
type IntakeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIntakeClient creates a transport posting to the intake endpoint at
// baseURL (e.g., "http://storage:8080").
//
// The timeout defaults to DefaultTimeout. A non-positive timeout is replaced
// by the default, so a request can never hang indefinitely.
func NewIntakeClient(baseURL string, timeout ...time.Duration) *IntakeClient {
	clientTimeout := DefaultTimeout
	if len(timeout) > 0 && timeout[0] > 0 {
		clientTimeout = timeout[0]
	}

	return &IntakeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Timeout returns the per-request timeout in use.
func (c *IntakeClient) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Send posts env to the intake endpoint exactly once. Any failure, including
// a non-200 response, wraps interfaces.ErrTransportFailure.
func (c *IntakeClient) Send(ctx context.Context, env interfaces.SignedEnvelope) (*interfaces.InstanceReceipt, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: could not encode envelope: %w", interfaces.ErrTransportFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+api.IntakeCreatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrTransportFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var receipt interfaces.InstanceReceipt
	if err := c.do(req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetInstance fetches an accepted instance by ID.
func (c *IntakeClient) GetInstance(ctx context.Context, id int64) (*interfaces.BucketInstance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s/%d", c.baseURL, api.InstancesPath, id), nil)
	if err != nil {
		return nil, err
	}

	var inst interfaces.BucketInstance
	if err := c.do(req, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances fetches every accepted instance.
func (c *IntakeClient) ListInstances(ctx context.Context) ([]*interfaces.BucketInstance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+api.InstancesPath, nil)
	if err != nil {
		return nil, err
	}

	var instances []*interfaces.BucketInstance
	if err := c.do(req, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (c *IntakeClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not request intake endpoint: %w", interfaces.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return fmt.Errorf("%w: intake endpoint returned non-200 response: %d", interfaces.ErrTransportFailure, resp.StatusCode)
		}
		return fmt.Errorf("%w: intake endpoint returned error %d: %s", interfaces.ErrTransportFailure, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: could not parse intake response: %w", interfaces.ErrTransportFailure, err)
	}
	return nil
}
