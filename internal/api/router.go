// Package api assembles the HTTP server of the simulator.
package api

import (
	"context"
	"net/http"

	"bess-intraday/internal/api/handlers"
	"bess-intraday/internal/api/middleware"
	"bess-intraday/internal/api/models"
	"bess-intraday/internal/app"

	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	BatteryDir     string
	AllowedOrigins []string
	// ServeMetrics mounts /metrics on the router itself.
	ServeMetrics bool
}

// NewRouter wires every route. The returned SimulationHandler lets the
// caller wait for background runs on shutdown.
func NewRouter(ctx context.Context, svc *app.Services, opts RouterOptions) (*gin.Engine, *handlers.SimulationHandler) {
	log := svc.Log.With("component", "api")

	router := gin.New()
	router.Use(middleware.CORS(opts.AllowedOrigins...))
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler(log))

	batteries := handlers.NewBatteryHandler(opts.BatteryDir, log)
	sims := handlers.NewSimulationHandler(ctx, svc, batteries.Dir())
	prices := handlers.NewPriceHandler(svc)

	router.GET("/health", handlers.Health(svc))
	if opts.ServeMetrics {
		router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/simulations", sims.Create)
		v1.GET("/simulations", sims.List)
		v1.GET("/simulations/:id", sims.Get)

		v1.GET("/batteries", batteries.ListBatteries)
		v1.GET("/prices", prices.Get)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: "route not found"},
		})
	})
	return router, sims
}
