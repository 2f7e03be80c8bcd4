package api

import (
	"context"
	"net/http"

	"github.com/okian/jury/internal/domain/types"
)

// StatsProvider defines the interface for getting event statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (types.Stats, error)
	GetStats() map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

type statsResponse struct {
	types.Stats
	Service map[string]any `json:"service"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.statsProvider.Stats(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.get_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, Service: h.statsProvider.GetStats()})
}
