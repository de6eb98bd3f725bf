package handlers

import (
	"context"
	"net/http"
	"time"

	"bess-intraday/internal/analysis"
	"bess-intraday/internal/api/models"
	"bess-intraday/internal/app"
	"bess-intraday/internal/data"
	"bess-intraday/internal/model"

	"github.com/gin-gonic/gin"
)

const priceQueryTimeout = 30 * time.Second

type PriceHandler struct {
	svc *app.Services
}

func NewPriceHandler(svc *app.Services) *PriceHandler {
	return &PriceHandler{svc: svc}
}

// Get handles GET /api/v1/prices
func (h *PriceHandler) Get(c *gin.Context) {
	var req models.PriceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cfg := h.svc.Config
	loc, err := cfg.Location()
	if err != nil {
		abortWith(c, http.StatusInternalServerError, "INVALID_CONFIG", err.Error())
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, req.Day, loc)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_DATE", "day must be in YYYY-MM-DD format")
		return
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_DATE", "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_DATE", "to must be RFC3339")
		return
	}
	sideStr := req.Side
	if sideStr == "" {
		sideStr = cfg.Simulation.Side
	}
	side, err := model.ParseSide(sideStr)
	if err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	minTrades := req.MinTrades
	if minTrades == 0 {
		minTrades = cfg.Battery.MinTrades
	}

	q := data.PriceQuery{Side: side, ExecStart: from, ExecEnd: to, DeliveryDay: day, MinTrades: minTrades}
	if err := q.Validate(); err != nil {
		abortWith(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), priceQueryTimeout)
	defer cancel()
	v, err := h.svc.Source.AveragePrices(ctx, q)
	if err != nil {
		abortWith(c, http.StatusBadGateway, "DATA_ERROR", err.Error())
		return
	}

	capacity := cfg.Battery.CapacityMWh
	if cfg.Simulation.NormalizeCapacity == nil || *cfg.Simulation.NormalizeCapacity {
		capacity = 1
	}
	pot := analysis.Potential(v, capacity, cfg.Battery.CRate, cfg.Battery.Efficiency)

	resp := models.PriceResponse{
		DeliveryDay: day,
		ExecStart:   from,
		ExecEnd:     to,
		Side:        string(side),
		MinTrades:   minTrades,
		Slots:       make([]models.PriceSlot, len(v)),
		Potential: models.Potential{
			Defined:   pot.Defined,
			MinPrice:  pot.MinPrice,
			MaxPrice:  pot.MaxPrice,
			MeanPrice: pot.MeanPrice,
			Spread:    pot.Spread,
			Profit:    pot.Profit,
			Cycles:    pot.Cycles(capacity, cfg.Battery.Efficiency),
		},
	}
	for i, sp := range v {
		resp.Slots[i].Slot = sp.Slot
		if sp.Valid {
			p := sp.Price
			resp.Slots[i].Price = &p
		}
	}
	c.JSON(http.StatusOK, resp)
}
