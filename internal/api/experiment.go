package api

import (
	"net/http"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/events"
	"github.com/ashureev/house-lab/internal/experiment"
	"github.com/ashureev/house-lab/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ExperimentHandler serves the participant-facing experiment endpoints.
type ExperimentHandler struct {
	*Handler
	hub *events.Hub
}

// NewExperimentHandler creates an ExperimentHandler. hub may be nil, in which
// case the websocket route is not registered.
func NewExperimentHandler(base *Handler, hub *events.Hub) *ExperimentHandler {
	return &ExperimentHandler{Handler: base, hub: hub}
}

// RegisterRoutes registers experiment routes.
func (h *ExperimentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.Catalog)
		r.Get("/config", h.Config)

		r.Post("/experiments", h.Start)
		r.Route("/experiments/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.End)
			r.Post("/next", h.ViewNext)
			r.Post("/benchmark", h.RevealBenchmark)
			r.Post("/purchase", h.Purchase)
			r.Post("/advance", h.AdvanceRound)
		})
	})
	if h.hub != nil {
		r.Get("/ws/experiments/{id}", h.Subscribe)
	}
}

type startRequest struct {
	Seed           *int64              `json:"seed,omitempty"`
	Policy         domain.BudgetPolicy `json:"budget_policy,omitempty"`
	CheckAllowance *int                `json:"check_allowance,omitempty"`
}

type propertyRequest struct {
	PropertyID *int `json:"property_id"`
}

type propertyResponse struct {
	Property domain.Property `json:"property"`
	Session  experiment.View `json:"session"`
}

// Catalog lists every property. Benchmarks are withheld; participants
// discover them through reveals.
func (h *ExperimentHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	rows := h.svc.Catalog()
	out := make([]domain.Property, len(rows))
	for i, p := range rows {
		out[i] = p.Redacted()
	}
	JSON(w, http.StatusOK, map[string]interface{}{"properties": out})
}

// Config returns the effective experiment parameters for the frontend.
func (h *ExperimentHandler) Config(w http.ResponseWriter, r *http.Request) {
	opts := h.svc.Engine().Options()
	JSON(w, http.StatusOK, map[string]interface{}{
		"rounds":          len(opts.RoundBudgets),
		"round_budgets":   opts.RoundBudgets,
		"candidate_count": opts.CandidateCount,
		"budget_policy":   opts.Policy,
		"check_allowance": opts.CheckLimit,
		"default_buyers":  h.svc.DefaultBuyers(),
	})
}

// Start creates a new experiment session for the caller.
func (h *ExperimentHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.svc.Start(r.Context(), identity.ParticipantIDFromContext(r.Context()), experiment.StartOptions{
		Seed:       req.Seed,
		Policy:     req.Policy,
		CheckLimit: req.CheckAllowance,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, h.svc.View(session))
}

// Get returns the caller's view of a session.
func (h *ExperimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.svc.View(session))
}

// End discards a session.
func (h *ExperimentHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.End(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// ViewNext shows the next candidate house.
func (h *ExperimentHandler) ViewNext(w http.ResponseWriter, r *http.Request) {
	p, session, err := h.svc.ViewNext(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, propertyResponse{Property: p.Redacted(), Session: h.svc.View(session)})
}

// RevealBenchmark discloses a viewed Location house's benchmark.
func (h *ExperimentHandler) RevealBenchmark(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(w, r)
	if !ok {
		return
	}
	session, err := h.svc.RevealBenchmark(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id"), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, propertyResponse{
		Property: h.svc.Engine().Catalog().MustLookup(id),
		Session:  h.svc.View(session),
	})
}

// Purchase buys a viewed house.
func (h *ExperimentHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(w, r)
	if !ok {
		return
	}
	session, err := h.svc.Purchase(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id"), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"purchase": session.Purchases[len(session.Purchases)-1],
		"session":  h.svc.View(session),
	})
}

// AdvanceRound moves to the next round.
func (h *ExperimentHandler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.AdvanceRound(r.Context(), identity.ParticipantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.svc.View(session))
}

// Subscribe streams session events over a websocket. Only the session's
// participant may subscribe.
func (h *ExperimentHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := h.svc.Get(r.Context(), identity.ParticipantIDFromContext(r.Context()), sessionID); err != nil {
		WriteError(w, err)
		return
	}
	h.hub.Serve(w, r, sessionID)
}

func propertyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req propertyRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.PropertyID == nil {
		Error(w, http.StatusBadRequest, "property_id is required")
		return 0, false
	}
	return *req.PropertyID, true
}
