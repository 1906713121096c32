package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/puppeteer/internal/api"
	"github.com/g960059/puppeteer/internal/model"
)

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

const (
	defaultUnaryTimeout = 10 * time.Second
	defaultPollInterval = time.Second
)

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewWithClient("http://unix", &http.Client{Transport: transport})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	if code != "" && message != "" {
		return fmt.Sprintf("%s: %s", code, message)
	}
	if code != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, code)
		}
		return code
	}
	if message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "http error"
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	return getJSON[api.HealthResponse](ctx, c, "/v1/health", nil)
}

func (c *Client) Instantiate(ctx context.Context, cfg model.Config) (api.ConfigEnvelope, error) {
	return postJSON[api.ConfigEnvelope](ctx, c, "/v1/instantiate", cfg)
}

func (c *Client) Config(ctx context.Context) (api.ConfigEnvelope, error) {
	return getJSON[api.ConfigEnvelope](ctx, c, "/v1/config", nil)
}

func (c *Client) UpdateConfig(ctx context.Context, req api.ConfigUpdateRequest) (api.ConfigEnvelope, error) {
	return postJSON[api.ConfigEnvelope](ctx, c, "/v1/config", req)
}

func (c *Client) State(ctx context.Context) (api.StateEnvelope, error) {
	return getJSON[api.StateEnvelope](ctx, c, "/v1/state", nil)
}

// Transactions lists ledger entries. An empty status lists all of them.
func (c *Client) Transactions(ctx context.Context, status model.TransferStatus) (api.TransactionsEnvelope, error) {
	query := url.Values{}
	if s := strings.TrimSpace(string(status)); s != "" {
		query.Set("status", s)
	}
	return getJSON[api.TransactionsEnvelope](ctx, c, "/v1/transactions", query)
}

func (c *Client) Transaction(ctx context.Context, sequence uint64) (api.TransactionEnvelope, error) {
	return getJSON[api.TransactionEnvelope](ctx, c, "/v1/transactions/"+strconv.FormatUint(sequence, 10), nil)
}

func (c *Client) Delegations(ctx context.Context) (api.DelegationsEnvelope, error) {
	return getJSON[api.DelegationsEnvelope](ctx, c, "/v1/delegations", nil)
}

func (c *Client) RegisterICA(ctx context.Context, sender string) (api.ICAEnvelope, error) {
	return postJSON[api.ICAEnvelope](ctx, c, "/v1/ica/register", api.ICARegisterRequest{Sender: sender})
}

func (c *Client) ChannelOpen(ctx context.Context, req api.ChannelOpenRequest) (api.ICAEnvelope, error) {
	return postJSON[api.ICAEnvelope](ctx, c, "/v1/channel/open", req)
}

func (c *Client) ChannelClose(ctx context.Context, channelID string) (api.StateEnvelope, error) {
	return postJSON[api.StateEnvelope](ctx, c, "/v1/channel/close", api.ChannelCloseRequest{ChannelID: channelID})
}

func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.TransactionEnvelope, error) {
	return postJSON[api.TransactionEnvelope](ctx, c, "/v1/submit", req)
}

func (c *Client) Ack(ctx context.Context, ack model.Ack) (api.AckEnvelope, error) {
	return postJSON[api.AckEnvelope](ctx, c, "/v1/ack", ack)
}

func (c *Client) Resync(ctx context.Context, req api.ResyncRequest) (api.StateEnvelope, error) {
	return postJSON[api.StateEnvelope](ctx, c, "/v1/resync", req)
}

func (c *Client) RemoteSnapshot(ctx context.Context, snapshot model.Snapshot) (api.SnapshotEnvelope, error) {
	return postJSON[api.SnapshotEnvelope](ctx, c, "/v1/remote-snapshot", snapshot)
}

// Outbox pages through queued packets. A zero limit uses the server default.
func (c *Client) Outbox(ctx context.Context, after uint64, limit int) (api.OutboxEnvelope, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return getJSON[api.OutboxEnvelope](ctx, c, "/v1/outbox", query)
}

func (c *Client) Events(ctx context.Context, sequence *uint64, limit int) (api.EventsEnvelope, error) {
	query := url.Values{}
	if sequence != nil {
		query.Set("sequence", strconv.FormatUint(*sequence, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return getJSON[api.EventsEnvelope](ctx, c, "/v1/events", query)
}

// WithdrawalReleasable reports whether funds behind sequence may be paid
// out. Only an acknowledged undelegation qualifies; pending and timed out
// entries never do.
func (c *Client) WithdrawalReleasable(ctx context.Context, sequence uint64) (bool, error) {
	env, err := c.Transaction(ctx, sequence)
	if err != nil {
		return false, err
	}
	t := env.Transaction
	return t.Kind == model.KindUndelegate && t.Status == model.TransferAcknowledged, nil
}

// WaitResolved polls a ledger entry until it leaves Pending or ctx ends.
func (c *Client) WaitResolved(ctx context.Context, sequence uint64, interval time.Duration) (model.Transfer, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	for {
		env, err := c.Transaction(ctx, sequence)
		if err != nil {
			return model.Transfer{}, err
		}
		if env.Transaction.Status.Terminal() {
			return env.Transaction, nil
		}
		if err := sleepWithContext(ctx, interval); err != nil {
			return env.Transaction, err
		}
	}
}

func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	body, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

func postJSON[T any](ctx context.Context, c *Client, path string, req any) (T, error) {
	var out T
	body, err := c.request(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
			return nil, &RequestError{
				StatusCode: resp.StatusCode,
				Code:       er.Error.Code,
				Message:    er.Error.Message,
			}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
