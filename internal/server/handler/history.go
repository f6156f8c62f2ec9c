package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vsimlabs/vaultsim/internal/domain"
	"github.com/vsimlabs/vaultsim/internal/service"
)

// HistoryHandler serves recorded simulation history.
type HistoryHandler struct {
	svc    *service.SimulationService
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(svc *service.SimulationService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger}
}

// ListSimulations returns recorded simulations, newest first. The optional
// wallet query parameter filters by initiator.
// GET /api/simulations
func (h *HistoryHandler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	opts := parseListOpts(r)

	recs, err := h.svc.List(r.Context(), wallet, opts)
	if err != nil {
		logHandler(h.logger, "history").ErrorContext(r.Context(), "list simulations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list simulations")
		return
	}
	if recs == nil {
		recs = []domain.SimulationRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"simulations": recs,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// GetSimulation returns one recorded simulation by id.
// GET /api/simulations/{id}
func (h *HistoryHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing simulation id")
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		logHandler(h.logger, "history").ErrorContext(r.Context(), "get simulation failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get simulation")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
