package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/runfleet/runfleet/pkg/protocol"
)

// DefaultRequestTimeout bounds every controller call so the polling loop
// cannot stall on an unresponsive controller.
const DefaultRequestTimeout = 30 * time.Second

// ClientConfig holds the configuration for creating a controller client.
type ClientConfig struct {
	Logger *slog.Logger

	// ServerURL is the base URL of the controller (e.g. "http://127.0.0.1:5000").
	ServerURL string

	// HTTPClient is the HTTP client to use. If nil, a client with
	// DefaultRequestTimeout is used.
	HTTPClient *http.Client
}

// Client speaks the controller protocol. All failures surface as errors
// the polling loop logs and retries on a later cycle; none are fatal.
type Client struct {
	logger     *slog.Logger
	serverURL  string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Client{
		logger:     logger,
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: httpClient,
	}
}

// Register exchanges the profile for a controller-assigned client id.
func (c *Client) Register(ctx context.Context, profile Profile) (string, error) {
	body := protocol.RegisterRequest{
		Name:    profile.Name,
		OS:      profile.OS,
		Version: profile.Version,
	}
	var resp protocol.RegisterResponse
	if err := c.postJSON(ctx, "/get-id", body, &resp); err != nil {
		return "", fmt.Errorf("registering with controller: %w", err)
	}
	if resp.ClientID == "" {
		return "", fmt.Errorf("registering with controller: empty client_id in response")
	}
	return resp.ClientID, nil
}

// GetActions fetches the pending actions for this identity. An absent or
// empty actions array is no pending work, not an error.
func (c *Client) GetActions(ctx context.Context, clientID string) ([]protocol.Action, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/get-actions/"+clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching actions: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching actions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching actions: %w", statusError(resp))
	}
	var actions protocol.ActionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&actions); err != nil {
		return nil, fmt.Errorf("fetching actions: decoding response: %w", err)
	}
	return actions.Actions, nil
}

// ReportResults submits the batch of results for one cycle in a single
// call. The response body on success is not interpreted.
func (c *Client) ReportResults(ctx context.Context, clientID string, results []protocol.ActionResult) error {
	body := protocol.ReportRequest{
		ClientID: clientID,
		Results:  results,
	}
	if err := c.postJSON(ctx, "/report-results", body, nil); err != nil {
		return fmt.Errorf("reporting results: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("controller returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
