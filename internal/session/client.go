// Package session executes requests against the backup server REST API and
// normalizes its failures into the module's error kinds.
package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Requester executes one backend call. Implementations never retry unless
// they say so explicitly.
type Requester interface {
	Do(ctx context.Context, method, path string, payload any) (*Response, error)
}

// Response is a successful (2xx) backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the body into v. Empty bodies and bad JSON are response errors.
func (r *Response) Decode(op string, v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return ResponseError(op, "empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return MalformedBody(op, err)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	Insecure  bool
	UserAgent string
}

// Client talks JSON to the backup server.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

const defaultTimeout = 60 * time.Second

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cleanroom/1.0"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in for self-signed servers
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}, nil
}

// Do sends one request. Non-2xx answers become transport errors carrying the
// normalized server text.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	op := method + " " + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, InvalidArgument(op, "payload is not serializable: %v", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, TransportError(op, 0, "failed to create request", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authtoken", c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, TransportError(op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(op, resp.StatusCode, "failed to read response body", err)
	}

	log.WithFields(log.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Backend request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, TransportError(op, resp.StatusCode, NormalizeErrorText(data), nil)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// DeleteResult reads the success flag of a delete call. A body carrying a
// nonzero errorCode counts as a failed delete. Empty or non-JSON bodies fail.
func DeleteResult(op string, resp *Response) (bool, error) {
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return false, ResponseError(op, "empty body")
	}
	var body struct {
		ErrorCode    FlexInt `json:"errorCode"`
		ErrorMessage string  `json:"errorMessage"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false, MalformedBody(op, err)
	}
	if body.ErrorCode != 0 {
		return false, ResponseError(op, "error code %d: %s", body.ErrorCode, body.ErrorMessage)
	}
	return true, nil
}
