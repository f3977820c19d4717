package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/apt"
)

var (
	ErrNoTable    = fmt.Errorf("%w: select a table first", api.ErrInvalidInput)
	ErrEmptyCart  = fmt.Errorf("%w: add at least one dish", api.ErrInvalidInput)
	ErrSubmitting = errors.New("order submission already in progress")
)

// Creator is the part of the REST API that creates orders.
type Creator interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*order.Order, error)
}

type WorkflowOptions struct {
	Creator Creator
	// OnCreated runs after a successful submit with the order the backend
	// returned.
	OnCreated func(order.Order)
	Logger    apt.Logger
}

// Workflow composes a new order: table, optional reservation, notes and a
// cart, then submits it.
type Workflow struct {
	creator   Creator
	onCreated func(order.Order)
	log       apt.Logger
	cart      *Cart

	mu          sync.Mutex
	table       int64
	reservation *int64
	notes       string
	submitting  bool
	lastErr     error
}

func NewWorkflow(opts WorkflowOptions) (*Workflow, error) {
	if opts.Creator == nil {
		return nil, errors.New("intake: creator required")
	}
	if opts.Logger == nil {
		opts.Logger = apt.NewNoopLogger()
	}
	return &Workflow{
		creator:   opts.Creator,
		onCreated: opts.OnCreated,
		log:       opts.Logger.With("component", "intake"),
		cart:      NewCart(),
	}, nil
}

func (w *Workflow) Cart() *Cart {
	return w.cart
}

func (w *Workflow) SelectTable(table int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table = table
}

// LinkReservation attaches a reservation. Zero clears it.
func (w *Workflow) LinkReservation(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id <= 0 {
		w.reservation = nil
		return
	}
	w.reservation = &id
}

func (w *Workflow) SetNotes(notes string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notes = notes
}

func (w *Workflow) Table() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.table
}

func (w *Workflow) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// LastError is the error of the most recent submit, nil after a success.
func (w *Workflow) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Request builds the creation payload from the current state.
func (w *Workflow) Request() (api.CreateOrderRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestLocked()
}

func (w *Workflow) requestLocked() (api.CreateOrderRequest, error) {
	if w.table <= 0 {
		return api.CreateOrderRequest{}, ErrNoTable
	}
	lines := w.cart.Lines()
	if len(lines) == 0 {
		return api.CreateOrderRequest{}, ErrEmptyCart
	}

	req := api.CreateOrderRequest{
		Table: w.table,
		Notes: w.notes,
		Items: make([]api.CreateLine, 0, len(lines)),
	}
	if w.reservation != nil {
		r := *w.reservation
		req.Reservation = &r
	}
	for _, l := range lines {
		req.Items = append(req.Items, api.CreateLine{
			Dish:     l.Dish.ID,
			Quantity: l.Quantity,
			Notes:    l.Notes,
		})
	}
	return req, nil
}

// Submit sends the order. On success the cart is cleared and OnCreated runs.
// On failure the cart is left as it was so the user can retry.
func (w *Workflow) Submit(ctx context.Context) (*order.Order, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitting
	}
	req, err := w.requestLocked()
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		return nil, err
	}
	w.submitting = true
	w.mu.Unlock()

	created, err := w.creator.CreateOrder(ctx, req)
	if err == nil && created == nil {
		err = &api.Error{Kind: api.KindServer, Message: "order created without a body"}
	}

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		w.log.Error("order submission failed", "table", req.Table, "error", err)
		return nil, err
	}
	w.lastErr = nil
	w.table = 0
	w.reservation = nil
	w.notes = ""
	w.cart.Reset()
	w.mu.Unlock()

	w.log.Info("order created", "order_id", created.ID, "table", req.Table, "lines", len(req.Items))
	if w.onCreated != nil {
		w.onCreated(*created)
	}
	return created, nil
}
