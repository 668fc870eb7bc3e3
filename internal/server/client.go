package server

import (
	"bufio"
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
)

// maxFrameSize bounds one NDJSON line; section results of large themes run to megabytes
const maxFrameSize = 16 * 1024 * 1024

// Client connects to a remote ScanServer
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the server at addr ("host:port" or a full URL)
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		// No client timeout: scans stream for minutes. Requests carry a context instead.
		httpClient: &http.Client{},
		baseURL:    base,
	}
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Ping(ctx)
	return err == nil
}

// Ping sends a health check to the server
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var pingResp PingResponse
	if err := c.getJSON(ctx, "/ping", &pingResp); err != nil {
		return nil, fmt.Errorf("failed to ping server: %w", err)
	}
	return &pingResp, nil
}

// GetStatus retrieves recent scan summaries
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}

// Shutdown asks the server to shut down
func (c *Client) Shutdown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request shutdown: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	return nil
}

// Scan starts a scan and calls onFrame for every frame the server streams.
// It returns the scan id and the terminal frame. A stream that ends without
// a terminal frame is an error.
func (c *Client) Scan(ctx context.Context, params ScanParams, onFrame func(Frame)) (string, *Frame, error) {
	q := url.Values{}
	q.Set("type", params.Type.String())
	if params.ThemeID > 0 {
		q.Set("theme_id", strconv.FormatInt(params.ThemeID, 10))
	}
	if params.BatchSize > 0 {
		q.Set("batch_size", strconv.Itoa(params.BatchSize))
	}
	if params.DelayMs >= 0 {
		q.Set("delay_ms", strconv.Itoa(params.DelayMs))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/scan?"+q.Encode(), nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Accept", NDJSONContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, serverError(resp)
	}

	id := resp.Header.Get(ScanIDHeader)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return id, nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		if onFrame != nil {
			onFrame(frame)
		}
		if frame.IsTerminal() {
			return id, &frame, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return id, nil, fmt.Errorf("scan stream interrupted: %w", err)
	}
	return id, nil, fmt.Errorf("scan stream ended without a result")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// serverError turns a non-200 response into an error, preferring the JSON error message
func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// StatusError is a non-200 response from the server
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}
