package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"mcserver-backend/internal/model"
	"mcserver-backend/internal/report"
	"mcserver-backend/internal/store"
)

// Reports is the read side served over HTTP.
type Reports interface {
	LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, bool, error)
	Window(ctx context.Context, metric string, minutes int) ([]report.Point, error)
	PlayerLookup(ctx context.Context, name string) (*model.Player, bool, error)
	Duels(ctx context.Context, name string) (*report.Duel, bool, error)
	Minutes(requested int) int
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	reports    Reports
	webpush    *webpush.Options
	statsToken string
}

// NewHandler creates a new API handler. statsToken guards the write
// endpoints; when empty they are disabled.
func NewHandler(s store.Store, reports Reports, webpushOptions *webpush.Options, statsToken string) *Handler {
	return &Handler{
		store:      s,
		reports:    reports,
		webpush:    webpushOptions,
		statsToken: statsToken,
	}
}
