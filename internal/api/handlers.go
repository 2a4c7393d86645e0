package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/identity"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/gorilla/mux"
)

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	input := mux.Vars(r)["input"]

	record, err := s.identities.Resolve(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	input := mux.Vars(r)["input"]

	record, err := s.identities.GetCached(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	if record == nil {
		respondJSON(w, http.StatusNotFound, ErrorBody{Error: "identity not cached"})
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// statsResponse adds derived weekly/monthly views to the stored stats
type statsResponse struct {
	IdentityAddress string                    `json:"identityAddress"`
	TotalRewards    float64                   `json:"totalRewards"`
	RewardCount     int64                     `json:"rewardCount"`
	DailyStats      []models.DailyRewardStat  `json:"dailyStats"`
	Weekly          []models.WeeklyAggregate  `json:"weekly"`
	Monthly         []models.MonthlyAggregate `json:"monthly"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	input := mux.Vars(r)["input"]

	stats, err := s.identities.GetStats(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, statsResponse{
		IdentityAddress: stats.IdentityAddress,
		TotalRewards:    stats.TotalRewards,
		RewardCount:     stats.RewardCount,
		DailyStats:      stats.DailyStats,
		Weekly:          identity.WeeklyFromDaily(stats.DailyStats),
		Monthly:         identity.MonthlyFromDaily(stats.DailyStats),
	})
}

func (s *Server) handlePriorityScan(w http.ResponseWriter, r *http.Request) {
	input := mux.Vars(r)["input"]

	receipt, err := s.scans.RequestPriorityScan(input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleFullScan(w http.ResponseWriter, r *http.Request) {
	input := mux.Vars(r)["input"]

	progress, err := s.scans.RequestFullScan(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress.Snapshot())
}

func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	progress := s.scans.GetProgress(handle)
	if progress == nil {
		respondJSON(w, http.StatusNotFound, ErrorBody{Error: "unknown scan handle"})
		return
	}
	respondJSON(w, http.StatusOK, progress.Snapshot())
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 100 {
			respondJSON(w, http.StatusBadRequest, ErrorBody{Error: "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	trending, err := s.trends.GetTrendingVerusIDs(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if trending == nil {
		trending = []models.TrendSnapshot{}
	}
	respondJSON(w, http.StatusOK, trending)
}

// chainHandler serves a daemon method through the read-through cache
func (s *Server) chainHandler(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := s.chain.Get(r.Context(), method)
		if err != nil {
			respondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]string, len(s.pingers))
	healthy := true
	for name, pinger := range s.pingers {
		if err := pinger.Ping(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
		} else {
			deps[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	body := map[string]interface{}{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().UTC().Format(time.RFC3339),
	}
	if s.poolStatus != nil {
		body["rpcPool"] = s.poolStatus()
	}

	respondJSON(w, status, body)
}
