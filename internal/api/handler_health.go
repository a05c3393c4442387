package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetRoot is the liveness probe.
func (h *Handler) GetRoot(c *gin.Context) {
	c.String(http.StatusOK, "Bot is online")
}
