package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/subnet-sentinel/internal/database"
	"github.com/aristath/subnet-sentinel/internal/domain"
	"github.com/aristath/subnet-sentinel/internal/modules/strategy"
	"github.com/aristath/subnet-sentinel/internal/monitor"
)

// Handlers serves the operational API: health, current metrics, active
// strategy, the rebalance audit log, and the manual force-rebalance trigger.
type Handlers struct {
	marketDB   *database.DB
	strategyDB *database.DB
	optimizer  *strategy.Service
	repo       *strategy.Repository
	monitor    *monitor.PerformanceMonitor
	startup    time.Time
	log        zerolog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(
	marketDB *database.DB,
	strategyDB *database.DB,
	optimizer *strategy.Service,
	repo *strategy.Repository,
	perfMonitor *monitor.PerformanceMonitor,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		marketDB:   marketDB,
		strategyDB: strategyDB,
		optimizer:  optimizer,
		repo:       repo,
		monitor:    perfMonitor,
		startup:    time.Now().UTC(),
		log:        log.With().Str("handler", "api").Logger(),
	}
}

// HandleHealth reports database reachability and host resource usage.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	databases := map[string]string{}
	for _, db := range []*database.DB{h.marketDB, h.strategyDB} {
		if db == nil {
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			databases[db.Name()] = err.Error()
			status = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}

	cpuPercent := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	memPercent := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"databases":      databases,
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"uptime_seconds": int64(time.Since(h.startup).Seconds()),
	})
}

// HandleMetrics returns the metric records from the latest optimization
// cycle, ordered by composite score descending.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	latest := h.optimizer.LatestMetrics()

	records := make([]domain.SubnetMetrics, 0, len(latest))
	for _, m := range latest {
		records = append(records, m)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Composite != records[j].Composite {
			return records[i].Composite > records[j].Composite
		}
		return records[i].NetUID < records[j].NetUID
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"metrics": records,
	})
}

// HandleStrategy returns the active strategy state.
func (h *Handlers) HandleStrategy(w http.ResponseWriter, r *http.Request) {
	state := h.optimizer.CurrentState()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"allocations":    state.Allocations,
		"total":          state.Allocations.Total(),
		"last_rebalance": state.LastRebalance,
	})
}

// HandleDecisions returns the newest rebalance audit log entries.
func (h *Handlers) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	records, err := h.repo.RecentDecisions(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(records),
		"decisions": records,
	})
}

// HandlePerformance returns the recorded performance samples.
func (h *Handlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"samples": []monitor.Sample{}})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"samples": h.monitor.Samples()})
}

// HandleForceRebalance runs an optimization cycle with the cooldown
// overridden. Manual operator action.
func (h *Handlers) HandleForceRebalance(w http.ResponseWriter, r *http.Request) {
	decision, err := h.optimizer.RunCycle(r.Context(), true)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.log.Info().Bool("accepted", decision.Accepted).Msg("Manual rebalance requested")
	h.writeJSON(w, http.StatusOK, decision)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
