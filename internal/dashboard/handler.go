package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/kitchen"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
)

const MaxBodyBytes = 1 << 16

// Board is the kitchen controller as seen by the dashboard.
type Board interface {
	View() kitchen.View
	ViewFiltered(f kitchen.Filter) kitchen.View
	Refresh(ctx context.Context) error
	ChangeStatus(ctx context.Context, id order.ID, target orderstatus.Status, motive string) error
	SetFilter(f kitchen.Filter) error
	DismissError()
	Reconnect()
	Subscribe() (string, <-chan kitchen.Change)
	Unsubscribe(id string)
}

type Handler struct {
	board     Board
	logger    apt.Logger
	tlm       *telemetry.HTTP
	keepalive time.Duration
}

func NewHandler(board Board, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		board:     board,
		logger:    logger,
		tlm:       telemetry.NewHTTP(),
		keepalive: 30 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.GetQueue)
		r.Post("/refresh", h.RefreshQueue)
		r.Put("/filter", h.SetFilter)
		r.Delete("/error", h.DismissError)
		r.Get("/events", h.Events)
	})
	r.Post("/orders/{id}/status", h.ChangeStatus)
	r.Route("/connection", func(r chi.Router) {
		r.Get("/", h.GetConnection)
		r.Post("/reconnect", h.Reconnect)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetQueue")
	defer finish()

	name := r.URL.Query().Get("filter")
	if name == "" {
		apt.Respond(w, http.StatusOK, h.board.View(), nil)
		return
	}

	// Only narrows this response. PUT /queue/filter changes the board.
	f, ok := kitchen.ParseFilter(name)
	if !ok {
		apt.RespondError(w, http.StatusBadRequest, "Invalid filter")
		return
	}
	apt.Respond(w, http.StatusOK, h.board.ViewFiltered(f), nil)
}

func (h *Handler) RefreshQueue(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RefreshQueue")
	defer finish()
	log := h.log(r)

	if err := h.board.Refresh(r.Context()); err != nil {
		log.Error("manual refresh failed", "error", err)
		respondFailure(w, err)
		return
	}
	apt.Respond(w, http.StatusOK, h.board.View(), nil)
}

type filterRequest struct {
	Filter string `json:"filter"`
}

func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetFilter")
	defer finish()

	var req filterRequest
	if err := decode(w, r, &req); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	f, ok := kitchen.ParseFilter(req.Filter)
	if !ok {
		apt.RespondError(w, http.StatusBadRequest, "Invalid filter")
		return
	}
	if err := h.board.SetFilter(f); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid filter")
		return
	}
	apt.Respond(w, http.StatusOK, h.board.View(), nil)
}

func (h *Handler) DismissError(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DismissError")
	defer finish()

	h.board.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"estado"`
	Motive string `json:"motivo"`
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ChangeStatus")
	defer finish()
	log := h.log(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	target, ok := orderstatus.ByName(req.Status)
	if !ok {
		apt.RespondError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	if err := h.board.ChangeStatus(r.Context(), id, target, req.Motive); err != nil {
		log.Info("status change rejected", "order_id", id, "target", target, "error", err)
		respondFailure(w, err)
		return
	}

	view := h.board.View()
	if row, ok := view.Row(id); ok {
		apt.Respond(w, http.StatusOK, row, nil)
		return
	}
	apt.Respond(w, http.StatusOK, view, nil)
}

type connectionResponse struct {
	Status       string    `json:"status"`
	Disconnected bool      `json:"disconnected"`
	Stale        bool      `json:"stale"`
	LastRefresh  time.Time `json:"last_refresh"`
}

func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetConnection")
	defer finish()

	apt.Respond(w, http.StatusOK, connection(h.board.View()), nil)
}

func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Reconnect")
	defer finish()

	h.log(r).Info("manual reconnect requested")
	h.board.Reconnect()
	apt.Respond(w, http.StatusAccepted, connection(h.board.View()), nil)
}

func connection(v kitchen.View) connectionResponse {
	return connectionResponse{
		Status:       string(v.Connection),
		Disconnected: v.Disconnected,
		Stale:        v.Stale,
		LastRefresh:  v.LastRefresh,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// respondFailure maps a controller error to an HTTP status and the same
// message the board shows.
func respondFailure(w http.ResponseWriter, err error) {
	msg := api.Describe(err).Message

	switch {
	case errors.Is(err, kitchen.ErrInFlight):
		apt.RespondError(w, http.StatusConflict, msg)
		return
	case errors.Is(err, kitchen.ErrUnknownOrder):
		apt.RespondError(w, http.StatusNotFound, msg)
		return
	case errors.Is(err, kitchen.ErrStopped):
		apt.RespondError(w, http.StatusServiceUnavailable, msg)
		return
	}

	switch api.KindOf(err) {
	case api.KindAuthorization:
		apt.RespondError(w, http.StatusForbidden, msg)
	case api.KindValidation:
		apt.RespondError(w, http.StatusUnprocessableEntity, msg)
	case api.KindTimeout:
		apt.RespondError(w, http.StatusGatewayTimeout, msg)
	default:
		apt.RespondError(w, http.StatusBadGateway, msg)
	}
}
