package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mcserver-backend/internal/model"
)

// ServerStats is the live payload of the stats endpoint.
type ServerStats struct {
	PlayerCount     int
	CPULoad         float64
	RAMUsedMB       int64
	RAMMaxMB        int64
	Threads         int
	LoadedChunks    int
	TotalJoins      int64
	TotalDeaths     int64
	UptimeMS        int64
	TotalRuntimeMS  int64
	TotalRuntimeHMS string
	OnlinePlayers   []OnlinePlayer
}

// OnlinePlayer identifies a connected player.
type OnlinePlayer struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type serverStatsWire struct {
	PlayerCount     *int           `json:"player_count"`
	CPULoad         *float64       `json:"cpu_load"`
	RAMUsedMB       int64          `json:"ram_used_mb"`
	RAMMaxMB        int64          `json:"ram_max_mb"`
	Threads         int            `json:"threads"`
	LoadedChunks    int            `json:"loaded_chunks"`
	TotalJoins      int64          `json:"total_joins"`
	TotalDeaths     int64          `json:"total_deaths"`
	UptimeMS        int64          `json:"uptime_ms"`
	TotalRuntimeMS  int64          `json:"total_runtime_ms"`
	TotalRuntimeHMS string         `json:"total_runtime_hms"`
	OnlinePlayers   []OnlinePlayer `json:"online_players"`
}

var errMalformed = errors.New("malformed stats payload")

// TelemetryClient fetches live statistics from the in-game stats endpoint.
type TelemetryClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewTelemetryClient creates a client whose every request is bounded by timeout.
func NewTelemetryClient(endpoint, token string, timeout time.Duration) *TelemetryClient {
	return &TelemetryClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// ServerStats fetches the server-wide snapshot.
func (c *TelemetryClient) ServerStats(ctx context.Context) (*ServerStats, error) {
	var w serverStatsWire
	if err := c.get(ctx, "", &w); err != nil {
		return nil, err
	}
	if w.PlayerCount == nil || w.CPULoad == nil {
		return nil, errMalformed
	}
	return &ServerStats{
		PlayerCount:     *w.PlayerCount,
		CPULoad:         *w.CPULoad,
		RAMUsedMB:       w.RAMUsedMB,
		RAMMaxMB:        w.RAMMaxMB,
		Threads:         w.Threads,
		LoadedChunks:    w.LoadedChunks,
		TotalJoins:      w.TotalJoins,
		TotalDeaths:     w.TotalDeaths,
		UptimeMS:        w.UptimeMS,
		TotalRuntimeMS:  w.TotalRuntimeMS,
		TotalRuntimeHMS: w.TotalRuntimeHMS,
		OnlinePlayers:   w.OnlinePlayers,
	}, nil
}

// PlayerStats fetches the cumulative record of one player.
func (c *TelemetryClient) PlayerStats(ctx context.Context, uuid string) (*model.Player, error) {
	var p model.Player
	if err := c.get(ctx, uuid, &p); err != nil {
		return nil, err
	}
	if p.UUID == "" || p.Name == "" {
		return nil, errMalformed
	}
	return &p, nil
}

func (c *TelemetryClient) get(ctx context.Context, player string, out any) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if player != "" {
		q := u.Query()
		q.Set("player", player)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Stats-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
