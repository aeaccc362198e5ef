package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignitionstack/ember/pkg/types"
)

// Client talks to a running ember host over its admin socket.
type Client interface {
	// Status checks if the host is running and returns its summary
	Status(ctx context.Context) (*types.StatusResponse, error)

	// Plugins lists every plugin id the host knows about
	Plugins(ctx context.Context) ([]types.PluginStatus, error)

	// Reload rescans the plugin directory
	Reload(ctx context.Context) (*types.ReloadResponse, error)

	// Enable turns a plugin on
	Enable(ctx context.Context, id string) (*types.EnableResponse, error)

	// Disable turns a plugin off
	Disable(ctx context.Context, id string) (*types.EnableResponse, error)

	// SetEnabled applies enablement changes to several plugins at once
	SetEnabled(ctx context.Context, changes map[string]bool) ([]BatchResult, error)

	// Call runs one export of a plugin
	Call(ctx context.Context, req types.CallRequest) (*types.CallResponse, error)

	// Logs gets the log lines of a plugin
	Logs(ctx context.Context, id string, since time.Duration, tail int) (*types.LogsResponse, error)
}

type clientImpl struct {
	socketPath string
	httpClient *http.Client
}

// Options for creating a new client
type Options struct {
	SocketPath string
}

// DefaultSocketPath returns the default admin socket path
func DefaultSocketPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".ember", "ember.sock")
}

// New creates a client with the given options
func New(opts Options) (Client, error) {
	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}

	return &clientImpl{
		socketPath: socketPath,
		httpClient: httpClient,
	}, nil
}

func (c *clientImpl) Status(ctx context.Context) (*types.StatusResponse, error) {
	// Keep the ping short so a dead host fails fast
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := c.sendRequest(pingCtx, http.MethodGet, "status", nil)
	if err != nil {
		return nil, connectionError(err)
	}
	defer resp.Body.Close()

	var status types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

// connectionError turns dial failures into messages a user can act on.
func connectionError(err error) error {
	var respErr ErrorResponse
	if errors.As(err, &respErr) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("engine connection timed out: %w", err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connect: no such file or directory") {
		return errors.New("engine is not running (socket file not found)")
	} else if strings.Contains(errMsg, "connect: connection refused") {
		return errors.New("engine is not running (connection refused)")
	}

	return fmt.Errorf("cannot connect to the engine: %w", err)
}

func (c *clientImpl) Plugins(ctx context.Context) ([]types.PluginStatus, error) {
	var plugins []types.PluginStatus
	if err := c.doJSON(ctx, http.MethodGet, "plugins", nil, &plugins); err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return plugins, nil
}

func (c *clientImpl) Reload(ctx context.Context) (*types.ReloadResponse, error) {
	var report types.ReloadResponse
	if err := c.doJSON(ctx, http.MethodPost, "reload", struct{}{}, &report); err != nil {
		return nil, fmt.Errorf("failed to reload plugins: %w", err)
	}
	return &report, nil
}

func (c *clientImpl) Enable(ctx context.Context, id string) (*types.EnableResponse, error) {
	return c.setEnabled(ctx, id, true)
}

func (c *clientImpl) Disable(ctx context.Context, id string) (*types.EnableResponse, error) {
	return c.setEnabled(ctx, id, false)
}

func (c *clientImpl) setEnabled(ctx context.Context, id string, enabled bool) (*types.EnableResponse, error) {
	endpoint := "disable"
	if enabled {
		endpoint = "enable"
	}
	var resp types.EnableResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, types.PluginRequest{ID: id}, &resp); err != nil {
		return nil, fmt.Errorf("failed to %s plugin %q: %w", endpoint, id, err)
	}
	return &resp, nil
}

// SetEnabled applies the changes concurrently. Every change is attempted;
// the returned error joins the individual failures.
func (c *clientImpl) SetEnabled(ctx context.Context, changes map[string]bool) ([]BatchResult, error) {
	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}

	results := make([]BatchResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = BatchResult{ID: id, Enabled: changes[id]}
			if _, err := c.setEnabled(gctx, id, changes[id]); err != nil {
				results[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []string
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err.Error())
		}
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("failed to update some plugins:\n%s", strings.Join(errs, "\n"))
	}
	return results, nil
}

func (c *clientImpl) Call(ctx context.Context, req types.CallRequest) (*types.CallResponse, error) {
	var resp types.CallResponse
	if err := c.doJSON(ctx, http.MethodPost, "call", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *clientImpl) Logs(ctx context.Context, id string, since time.Duration, tail int) (*types.LogsResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Add("since", since.String())
	}
	if tail > 0 {
		query.Add("tail", strconv.Itoa(tail))
	}

	endpoint := "logs/" + url.PathEscape(id)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var logs types.LogsResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &logs); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return &logs, nil
}

func (c *clientImpl) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	resp, err := c.sendRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// sendRequest sends a request to the host. Non-200 responses are returned
// as ErrorResponse when the body decodes as one.
func (c *clientImpl) sendRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix/"+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Message != "" {
			if errResp.Status == 0 {
				errResp.Status = resp.StatusCode
			}
			return nil, errResp
		}

		return nil, fmt.Errorf("request failed (status code %d): %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	return resp, nil
}
