package api

import (
	"net/http"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/simulation"
	"github.com/go-chi/chi/v5"
)

// SimulationHandler serves batch simulation endpoints.
type SimulationHandler struct {
	*Handler
	maxBuyers int
}

// NewSimulationHandler creates a SimulationHandler. Requests asking for more
// than maxBuyers buyers are rejected; maxBuyers <= 0 means no limit.
func NewSimulationHandler(base *Handler, maxBuyers int) *SimulationHandler {
	return &SimulationHandler{Handler: base, maxBuyers: maxBuyers}
}

// RegisterRoutes registers simulation routes.
func (h *SimulationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/simulations", func(r chi.Router) {
		r.Post("/", h.Run)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/stats", h.Stats)
	})
}

type simulationRequest struct {
	Buyers int    `json:"buyers,omitempty"`
	Seed   *int64 `json:"seed,omitempty"`
}

type simulationResponse struct {
	Run   *domain.SimulationRun `json:"run"`
	Stats simulation.Stats      `json:"stats"`
}

// Run executes and stores a simulation, returning the run and its
// aggregates.
func (h *SimulationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Buyers < 0 || (h.maxBuyers > 0 && req.Buyers > h.maxBuyers) {
		Error(w, http.StatusBadRequest, "buyers out of range")
		return
	}

	run, err := h.svc.RunSimulation(r.Context(), req.Buyers, req.Seed)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, simulationResponse{Run: run, Stats: simulation.Summarize(run)})
}

// Get returns a stored run.
func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetSimulation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, run)
}

// Stats returns the aggregates of a stored run.
func (h *SimulationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SimulationStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
