// Package push talks to the Expo push notification service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://exp.host/--/api/v2"

	// Service limits per request.
	MaxMessagesPerRequest   = 100
	MaxReceiptIDsPerRequest = 300

	defaultMaxRetries = 3
)

var (
	expoTokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[.+\]$`)
	uuidTokenPattern = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)
)

// Client is an Expo push API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	maxRetries  uint64
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsValidToken reports whether token looks like an Expo push token.
func (c *Client) IsValidToken(token string) bool {
	return expoTokenPattern.MatchString(token) || uuidTokenPattern.MatchString(token)
}

// Chunk splits messages into request-sized groups.
func (c *Client) Chunk(messages []Message) [][]Message {
	var chunks [][]Message
	for start := 0; start < len(messages); start += MaxMessagesPerRequest {
		end := start + MaxMessagesPerRequest
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}

// ChunkReceiptIDs splits ticket ids into request-sized groups.
func (c *Client) ChunkReceiptIDs(ids []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += MaxReceiptIDsPerRequest {
		end := start + MaxReceiptIDsPerRequest
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

type sendResponse struct {
	Data   []Ticket   `json:"data"`
	Errors []apiError `json:"errors"`
}

type receiptsResponse struct {
	Data   map[string]Receipt `json:"data"`
	Errors []apiError         `json:"errors"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send delivers up to MaxMessagesPerRequest messages and returns one ticket
// per message, in order.
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxMessagesPerRequest {
		return nil, fmt.Errorf("push: %d messages exceed the per-request limit of %d", len(messages), MaxMessagesPerRequest)
	}

	var resp sendResponse
	if err := c.post(ctx, "/push/send", messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("push: send rejected: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) != len(messages) {
		return nil, fmt.Errorf("push: expected %d tickets, got %d", len(messages), len(resp.Data))
	}
	return resp.Data, nil
}

// GetReceipts fetches the receipts for up to MaxReceiptIDsPerRequest ticket
// ids. Tickets whose receipt is not ready yet are absent from the result.
func (c *Client) GetReceipts(ctx context.Context, ticketIDs []string) (map[string]Receipt, error) {
	if len(ticketIDs) == 0 {
		return map[string]Receipt{}, nil
	}
	if len(ticketIDs) > MaxReceiptIDsPerRequest {
		return nil, fmt.Errorf("push: %d receipt ids exceed the per-request limit of %d", len(ticketIDs), MaxReceiptIDsPerRequest)
	}

	var resp receiptsResponse
	if err := c.post(ctx, "/push/getReceipts", map[string][]string{"ids": ticketIDs}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("push: receipts rejected: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if resp.Data == nil {
		resp.Data = map[string]Receipt{}
	}
	return resp.Data, nil
}

// post sends body as JSON and decodes the response into out. Rate limiting
// and server errors are retried with exponential backoff; other failures are
// returned immediately.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("push: encode request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		if c.accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.accessToken)
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer res.Body.Close()

		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return fmt.Errorf("push: %s returned %d", path, res.StatusCode)
		}
		if res.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("push: %s returned %d: %s", path, res.StatusCode, strings.TrimSpace(string(raw))))
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("push: decode %s response: %w", path, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{"path": path, "wait": wait.String()}).WithError(err).Warn("push request failed, retrying")
	})
}
