package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Tnze/go-mc/bot"
)

const defaultGamePort = "25565"

// pingFunc performs a server-list ping and returns the raw status JSON.
type pingFunc func(addr string, timeout time.Duration) ([]byte, time.Duration, error)

// StatusPinger reads the player count straight from the game server's status
// protocol, bypassing the management API.
type StatusPinger struct {
	addr    string
	timeout time.Duration
	ping    pingFunc
}

// NewStatusPinger creates a pinger for host[:port].
func NewStatusPinger(addr string, timeout time.Duration) *StatusPinger {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultGamePort)
	}
	return &StatusPinger{addr: addr, timeout: timeout, ping: bot.PingAndListTimeout}
}

type listResponse struct {
	Players struct {
		Online *int `json:"online"`
		Max    int  `json:"max"`
	} `json:"players"`
}

// Count returns the number of players online. It never waits longer than
// the configured timeout.
func (p *StatusPinger) Count(ctx context.Context) (int, error) {
	type result struct {
		raw []byte
		err error
	}
	// The ping library blocks without a context; run it aside and give up at
	// the deadline.
	done := make(chan result, 1)
	go func() {
		raw, _, err := p.ping(p.addr, p.timeout)
		done <- result{raw, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		var resp listResponse
		if err := json.Unmarshal(r.raw, &resp); err != nil {
			return 0, fmt.Errorf("decode status: %w", err)
		}
		if resp.Players.Online == nil {
			return 0, fmt.Errorf("status has no player count")
		}
		return *resp.Players.Online, nil
	}
}
