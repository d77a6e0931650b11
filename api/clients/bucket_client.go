package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/api"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// DefaultTimeout bounds every request made by a BucketClient.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx answer of the bucket API.
type StatusError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *StatusError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("bucket API returned error %d: %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("bucket API returned error %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers test a 404 with errors.Is(err, interfaces.ErrNotFound).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return interfaces.ErrNotFound
	}
	return nil
}

// BucketClient talks to the bucket management API of the registry server.
type BucketClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBucketClient returns a client for the registry server at baseURL.
func NewBucketClient(baseURL string) *BucketClient {
	return &BucketClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Create registers and provisions a new bucket.
//
// When the bucket was stored but provisioning failed, the persisted bucket
// is returned together with a *StatusError.
func (c *BucketClient) Create(ctx context.Context, spec interfaces.BucketSpec) (*interfaces.Bucket, error) {
	var b interfaces.Bucket
	err := c.do(ctx, http.MethodPost, api.BucketsPath, spec, &b)
	return provisionedOrFailed(&b, err)
}

// Get returns a bucket by ID.
func (c *BucketClient) Get(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	var b interfaces.Bucket
	if err := c.do(ctx, http.MethodGet, bucketPath(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByName returns the bucket with the given name, or an error wrapping
// interfaces.ErrNotFound.
func (c *BucketClient) GetByName(ctx context.Context, name string) (*interfaces.Bucket, error) {
	var buckets []*interfaces.Bucket
	if err := c.do(ctx, http.MethodGet, api.BucketsPath+"?name="+url.QueryEscape(name), nil, &buckets); err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("bucket %q: %w", name, interfaces.ErrNotFound)
	}
	return buckets[0], nil
}

// List returns all buckets, optionally restricted to one state.
func (c *BucketClient) List(ctx context.Context, filter interfaces.BucketFilter) ([]*interfaces.Bucket, error) {
	path := api.BucketsPath
	if filter.State != "" {
		path += "?state=" + url.QueryEscape(string(filter.State))
	}

	var buckets []*interfaces.Bucket
	if err := c.do(ctx, http.MethodGet, path, nil, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// Update applies a partial update to a bucket.
func (c *BucketClient) Update(ctx context.Context, id int64, update interfaces.BucketUpdate) (*interfaces.Bucket, error) {
	var b interfaces.Bucket
	if err := c.do(ctx, http.MethodPatch, bucketPath(id), update, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Reprovision retries provisioning of a bucket in provision_failed.
func (c *BucketClient) Reprovision(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	var b interfaces.Bucket
	err := c.do(ctx, http.MethodPost, bucketPath(id)+"/reprovision", nil, &b)
	return provisionedOrFailed(&b, err)
}

func bucketPath(id int64) string {
	return api.BucketsPath + "/" + strconv.FormatInt(id, 10)
}

// failedProvisioning carries the bucket of a 502 answer next to the error.
type failedProvisioning struct {
	status *StatusError
	bucket *interfaces.Bucket
}

func (e *failedProvisioning) Error() string { return e.status.Error() }
func (e *failedProvisioning) Unwrap() error { return e.status }

func provisionedOrFailed(b *interfaces.Bucket, err error) (*interfaces.Bucket, error) {
	if fp, ok := err.(*failedProvisioning); ok {
		return fp.bucket, fp.status
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *BucketClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request bucket API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse bucket API response: %w", err)
	}
	return nil
}

func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	status := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}

	if resp.StatusCode == http.StatusBadGateway {
		var failed api.ProvisionFailedResponse
		if json.Unmarshal(raw, &failed) == nil && failed.Bucket != nil {
			status.Message = failed.Error
			return &failedProvisioning{status: status, bucket: failed.Bucket}
		}
	}

	var errResp api.ErrorResponse
	if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
		status.Message = errResp.Error
		status.Field = errResp.Field
	}
	return status
}
