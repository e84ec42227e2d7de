// Package shelly talks to a Shelly Gen2+ device over its HTTP JSON-RPC
// endpoint. It provides the relay, job scheduler and key-value store used by
// spotswitch.
package shelly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/awaistahir/spotswitch/internal/schedule"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/awaistahir/spotswitch/internal/transport"
)

// codeNotFound is returned by KVS.Get for a missing key
const codeNotFound = -105

// RPCError is an error reported by the device
type RPCError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: device error %d: %s", e.Method, e.Code, e.Message)
}

// Client is a JSON-RPC client for one device
type Client struct {
	client  *transport.Client
	rpcURL  string
	switchN int
	nextID  atomic.Int64
}

// NewClient creates a client for the device at baseURL (e.g.
// http://192.168.1.20) controlling switch component switchID
func NewClient(baseURL string, switchID int, opts ...transport.Option) *Client {
	return &Client{
		client:  transport.New("shelly", opts...),
		rpcURL:  strings.TrimRight(baseURL, "/") + "/rpc",
		switchN: switchID,
	}
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Src    string          `json:"src"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call invokes method and decodes the result into out (which may be nil)
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: device returned status %d: %s", method, resp.StatusCode, string(raw))
		}
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if rpcResp.Error != nil {
		rpcResp.Error.Method = method
		return rpcResp.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: device returned status %d", method, resp.StatusCode)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return nil
}

// SetSwitch turns the configured relay on or off
func (c *Client) SetSwitch(ctx context.Context, on bool) error {
	params := map[string]any{"id": c.switchN, "on": on}
	return c.call(ctx, "Switch.Set", params, nil)
}

// List returns all jobs known to the device scheduler
func (c *Client) List(ctx context.Context) ([]schedule.Job, error) {
	var result struct {
		Jobs []schedule.Job `json:"jobs"`
	}
	if err := c.call(ctx, "Schedule.List", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// Create installs a new job and returns its id
func (c *Client) Create(ctx context.Context, job schedule.Job) (int, error) {
	job.ID = 0
	var result struct {
		ID  int `json:"id"`
		Rev int `json:"rev"`
	}
	if err := c.call(ctx, "Schedule.Create", job, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// Update replaces an existing job in place
func (c *Client) Update(ctx context.Context, job schedule.Job) error {
	if job.ID == 0 {
		return errors.New("Schedule.Update: job has no id")
	}
	return c.call(ctx, "Schedule.Update", job, nil)
}

// Delete removes a job from the device scheduler
func (c *Client) Delete(ctx context.Context, id int) error {
	return c.call(ctx, "Schedule.Delete", map[string]any{"id": id}, nil)
}

// Get reads a key from the device key-value store
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var result struct {
		Etag  string          `json:"etag"`
		Value json.RawMessage `json:"value"`
	}
	err := c.call(ctx, "KVS.Get", map[string]any{"key": key}, &result)

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeNotFound {
		return "", fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	// values written by other scripts may be numbers or objects
	var s string
	if err := json.Unmarshal(result.Value, &s); err == nil {
		return s, nil
	}
	return string(result.Value), nil
}

// Set overwrites a key in the device key-value store
func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.call(ctx, "KVS.Set", map[string]any{"key": key, "value": value}, nil)
}
