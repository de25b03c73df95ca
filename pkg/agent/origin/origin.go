/* Copyright 2025 Pagekeep Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package origin provides an interface for interacting with the catalog
// origin and the data structures for responses
package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrNetworkUnavailable is an error for a request that failed before
// reaching the origin. It marks the boundary between degraded service
// and offline operation.
var ErrNetworkUnavailable = errors.New("network unavailable")

// IsNetworkUnavailable checks if the given error indicates that the
// origin could not be reached
func IsNetworkUnavailable(err error) bool {
	return errors.Cause(err) == ErrNetworkUnavailable
}

// HTTPError represents an HTTP error response from the origin
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`origin responded %d "%s"`, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404 Not Found error
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

const (
	// clientRateLimitPerSecond is the max requests per second the agent will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient(timeout time.Duration) *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Client is a handle to the catalog origin
type Client struct {
	// Endpoint is the base URL of the origin, without a trailing slash
	Endpoint string
	// Version is the agent version reported on every request
	Version string
	// HTTPClient makes the requests. Tests inject their own.
	HTTPClient *http.Client
}

// NewClient creates an origin client with a rate-limited HTTP client
func NewClient(endpoint, version string, timeout time.Duration) *Client {
	return &Client{
		Endpoint:   endpoint,
		Version:    version,
		HTTPClient: NewRateLimitedHTTPClient(timeout),
	}
}

func (c *Client) getReq(ctx context.Context, method, path, body string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", c.Endpoint, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("Agent-Version", c.Version)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// checkRespErr checks if the given http response indicates an error and
// returns a decoded error message.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "origin responded with %d but the response body could not be read", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

// doReq does a http request to the given path on the origin. A transport
// failure is reported as ErrNetworkUnavailable; an HTTP error status as
// HTTPError.
func (c *Client) doReq(ctx context.Context, method, path, body string) (*http.Response, error) {
	req, err := c.getReq(ctx, method, path, body)
	if err != nil {
		return nil, errors.Wrap(err, "getting request")
	}

	log.WithFields(log.Fields{
		"method": method,
		"path":   path,
	}).Debug("origin request")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrNetworkUnavailable, "%s %s: %s", method, path, err)
	}

	if err = checkRespErr(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrap(err, "origin responded with an error")
	}

	return res, nil
}

// Fetch forwards a request to the origin and returns the raw response.
// The intercept proxy uses it to pass responses through verbatim, error
// statuses included, so no status check happens here.
func (c *Client) Fetch(ctx context.Context, method, path string, header http.Header) (*http.Response, error) {
	req, err := c.getReq(ctx, method, path, "")
	if err != nil {
		return nil, errors.Wrap(err, "getting request")
	}
	for key, vals := range header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrNetworkUnavailable, "%s %s: %s", method, path, err)
	}

	return res, nil
}

// Ping probes origin reachability. It is the connectivity signal for the
// sync coordinator.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.doReq(ctx, "GET", "/v1/health", "")
	if err != nil {
		return err
	}
	res.Body.Close()

	return nil
}

// GetCatalogResp is the response from the catalog listing endpoint
type GetCatalogResp struct {
	Books []store.BookRecord `json:"books"`
}

// GetCatalog lists the books available on the origin
func (c *Client) GetCatalog(ctx context.Context) (GetCatalogResp, error) {
	res, err := c.doReq(ctx, "GET", "/v1/books", "")
	if err != nil {
		return GetCatalogResp{}, errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	var resp GetCatalogResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return GetCatalogResp{}, errors.Wrap(err, "decoding payload")
	}

	return resp, nil
}

// GetBookResp is the response from the get book endpoint
type GetBookResp struct {
	Book store.BookRecord `json:"book"`
}

// GetBook gets a single book record from the origin
func (c *Client) GetBook(ctx context.Context, bookID string) (GetBookResp, error) {
	endpoint := fmt.Sprintf("/v1/books/%s", bookID)
	res, err := c.doReq(ctx, "GET", endpoint, "")
	if err != nil {
		return GetBookResp{}, errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	var resp GetBookResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return GetBookResp{}, errors.Wrap(err, "decoding payload")
	}

	return resp, nil
}

// GetBookContent downloads the readable bytes of a book. The whole
// payload is buffered before returning: a short read is an error, never
// a partial result.
func (c *Client) GetBookContent(ctx context.Context, bookID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("/v1/books/%s/content", bookID)
	res, err := c.doReq(ctx, "GET", endpoint, "")
	if err != nil {
		return nil, "", errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading the content body")
	}
	if res.ContentLength >= 0 && int64(len(body)) != res.ContentLength {
		return nil, "", errors.Errorf("content truncated: got %d of %d bytes", len(body), res.ContentLength)
	}

	format := res.Header.Get("X-Book-Format")

	return body, format, nil
}

// SyncAnalyticsPayload is a payload for the bulk analytics endpoint
type SyncAnalyticsPayload struct {
	Events []store.AnalyticsEvent `json:"events"`
}

// SyncAnalyticsResp is the response from the bulk analytics endpoint.
// AckUUIDs names exactly the events the origin durably accepted.
type SyncAnalyticsResp struct {
	AckUUIDs []string `json:"ack_uuids"`
}

// SyncAnalytics posts a batch of pending analytics events to the origin
func (c *Client) SyncAnalytics(ctx context.Context, events []store.AnalyticsEvent) (SyncAnalyticsResp, error) {
	payload := SyncAnalyticsPayload{Events: events}
	b, err := json.Marshal(payload)
	if err != nil {
		return SyncAnalyticsResp{}, errors.Wrap(err, "marshaling payload")
	}

	res, err := c.doReq(ctx, "POST", "/v1/analytics/bulk", string(b))
	if err != nil {
		return SyncAnalyticsResp{}, errors.Wrap(err, "posting analytics to the origin")
	}
	defer res.Body.Close()

	var resp SyncAnalyticsResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return SyncAnalyticsResp{}, errors.Wrap(err, "decoding payload")
	}

	return resp, nil
}
