package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bess-intraday/internal/api/models"
	"bess-intraday/internal/config"

	"github.com/gin-gonic/gin"
)

// DefaultBatteryDir holds the battery presets shipped with the repo.
const DefaultBatteryDir = "configs/batteries"

// BatteryHandler handles battery-related requests
type BatteryHandler struct {
	batteryDir string
	log        *slog.Logger
}

// NewBatteryHandler resolves dir, then BATTERY_DIR, then DefaultBatteryDir.
func NewBatteryHandler(dir string, log *slog.Logger) *BatteryHandler {
	if dir == "" {
		dir = os.Getenv("BATTERY_DIR")
	}
	if dir == "" {
		dir = DefaultBatteryDir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &BatteryHandler{batteryDir: dir, log: log}
}

func (h *BatteryHandler) Dir() string { return h.batteryDir }

// ListBatteries handles GET /api/v1/batteries
func (h *BatteryHandler) ListBatteries(c *gin.Context) {
	batteries := []models.BatteryInfo{}

	entries, err := os.ReadDir(h.batteryDir)
	if err != nil {
		h.log.Warn("battery directory unreadable", "dir", h.batteryDir, "err", err)
		c.JSON(http.StatusOK, gin.H{"batteries": batteries})
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(h.batteryDir, entry.Name())
		b, err := config.LoadBatteryFile(path)
		if err != nil {
			h.log.Warn("skipping battery file", "path", path, "err", err)
			continue
		}
		batteries = append(batteries, models.BatteryInfo{
			ID:   strings.TrimSuffix(entry.Name(), ".yaml"),
			Name: b.Name,
			File: path,
			Specs: models.BatterySpecs{
				CapacityMWh:      b.CapacityMWh,
				CRate:            b.CRate,
				Efficiency:       b.Efficiency,
				MaxCyclesPerYear: b.MaxCyclesPerYear,
			},
		})
	}
	sort.Slice(batteries, func(i, j int) bool { return batteries[i].ID < batteries[j].ID })

	c.JSON(http.StatusOK, gin.H{"batteries": batteries})
}
