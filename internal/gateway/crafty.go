package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mcserver-backend/config"
)

// CraftyClient talks to the game-server management API.
type CraftyClient struct {
	baseURL  string
	serverID string
	token    string
	client   *http.Client
}

// NewCraftyClient creates a client for the configured server.
func NewCraftyClient(cfg config.CraftyConfig) *CraftyClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// The panel commonly runs with a self-signed certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &CraftyClient{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		serverID: cfg.ServerID,
		token:    cfg.Token,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// StopServer asks the panel to stop the game process. Anything but 200 is an
// *Error.
func (c *CraftyClient) StopServer(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v2/servers/%s/action/stop_server", c.baseURL, c.serverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return wrap("stop game server", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return wrap("stop game server", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return wrap("stop game server", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return nil
}
