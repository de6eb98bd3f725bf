package handlers

import (
	"net/http"

	"bess-intraday/internal/app"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func Health(svc *app.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "driver": svc.Config.Data.Driver}
		if svc.Cache != nil {
			hits, misses := svc.Cache.Stats()
			body["cache"] = gin.H{"hits": hits, "misses": misses}
		}
		c.JSON(http.StatusOK, body)
	}
}
