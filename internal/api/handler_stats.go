package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mcserver-backend/internal/model"
	"mcserver-backend/internal/report"
)

// GetLatestStats returns the newest snapshot.
func (h *Handler) GetLatestStats(c *gin.Context) {
	snap, ok, err := h.reports.LatestSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots recorded"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSeries returns a metric over the trailing ?minutes= window. Gap points
// carry a null value.
func (h *Handler) GetSeries(c *gin.Context) {
	metric := c.Param("metric")
	spec, known := report.Metrics[metric]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown metric", "metrics": report.MetricKeys()})
		return
	}

	minutes := 0
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
			return
		}
		minutes = n
	}
	minutes = h.reports.Minutes(minutes)

	points, err := h.reports.Window(c.Request.Context(), metric, minutes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric":  metric,
		"label":   spec.Label,
		"unit":    spec.Unit,
		"minutes": minutes,
		"points":  points,
	})
}

// GetPlayer returns a player record by case-insensitive name.
func (h *Handler) GetPlayer(c *gin.Context) {
	p, ok, err := h.reports.PlayerLookup(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetDuels returns the duel record of a player.
func (h *Handler) GetDuels(c *gin.Context) {
	d, ok, err := h.reports.Duels(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no duel stats"})
		return
	}
	c.JSON(http.StatusOK, d)
}

type putDuelsRequest struct {
	DisplayName string                     `json:"display_name"`
	Wins        int                        `json:"wins"`
	Losses      int                        `json:"losses"`
	Rating      int                        `json:"rating"`
	Kits        map[string]model.KitRecord `json:"kits"`
}

// PutDuels stores the duel record pushed by the game server plugin. It
// requires the stats token in X-Stats-Token.
func (h *Handler) PutDuels(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid stats token"})
		return
	}

	var req putDuelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	kits := []byte("{}")
	if len(req.Kits) > 0 {
		var err error
		if kits, err = json.Marshal(req.Kits); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kits"})
			return
		}
	}

	name := c.Param("name")
	display := req.DisplayName
	if display == "" {
		display = name
	}
	err := h.store.UpsertDuelStats(c.Request.Context(), model.DuelStats{
		Name:        name,
		DisplayName: display,
		Wins:        req.Wins,
		Losses:      req.Losses,
		Rating:      req.Rating,
		Kits:        string(kits),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.statsToken == "" {
		return false
	}
	got := c.GetHeader("X-Stats-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.statsToken)) == 1
}
