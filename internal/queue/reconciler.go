package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/appetiteclub/appetite-client/pkg/event"
	"github.com/appetiteclub/apt"
)

// Action tells the caller what to do after a live message was applied.
type Action int

const (
	ActionNone Action = iota
	ActionUpdated
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionUpdated:
		return "updated"
	case ActionRefresh:
		return "refresh"
	}
	return "none"
}

var ErrDecode = errors.New("cannot decode live message")

// Reconciler keeps the local copy of the active queue and merges server
// responses and live events into it.
type Reconciler struct {
	mu sync.RWMutex
	// orders indexed by id
	orders map[order.ID]*order.Order
	// index by status -> order ids
	byStatus map[orderstatus.Status][]order.ID

	issued  uint64
	applied uint64

	logger apt.Logger
}

func NewReconciler(logger apt.Logger) *Reconciler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Reconciler{
		orders:   make(map[order.ID]*order.Order),
		byStatus: make(map[orderstatus.Status][]order.ID),
		logger:   logger,
	}
}

// Begin returns the sequence number to tag a full refresh with.
func (r *Reconciler) Begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	return r.issued
}

// Replace swaps the collection for orders unless a newer refresh was already
// applied. It reports whether the collection changed.
func (r *Reconciler) Replace(seq uint64, orders []order.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.applied {
		r.logger.Debug("discarding stale refresh", "seq", seq, "applied", r.applied)
		return false
	}
	r.applied = seq

	r.orders = make(map[order.ID]*order.Order, len(orders))
	r.byStatus = make(map[orderstatus.Status][]order.ID)
	for i := range orders {
		o := orders[i].Clone()
		r.setLocked(&o)
	}
	return true
}

// Apply merges one live message. Created events are not inserted locally:
// the caller gets ActionRefresh and refetches. Unknown event types are
// ignored.
func (r *Reconciler) Apply(data []byte) (Action, error) {
	var evt event.OrderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.Error("failed to unmarshal order event", "error", err)
		return ActionNone, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch evt.EventType {
	case event.EventOrderCreated:
		return ActionRefresh, nil
	case event.EventOrderUpdated:
		id := evt.OrderID
		if id == 0 {
			id = idFromData(evt.Data)
		}
		ok, err := r.Merge(id, evt.Data)
		if err != nil {
			r.logger.Error("failed to merge order update", "order_id", id, "error", err)
			return ActionNone, err
		}
		if !ok {
			return ActionNone, nil
		}
		return ActionUpdated, nil
	default:
		return ActionNone, nil
	}
}

// Merge overlays the fields present in patch onto the order with id. Orders
// that are not in the collection are left alone.
func (r *Reconciler) Merge(id order.ID, patch json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	if len(patch) == 0 {
		return false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	merged := current.Clone()
	if err := json.Unmarshal(patch, &merged); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	merged.ID = id

	// The server list belongs to the previous status unless resent.
	_, statusSent := fields["estado"]
	_, listSent := fields["transiciones_permitidas"]
	if statusSent && !listSent && merged.Status != current.Status {
		merged.AllowedTransitions = nil
	}

	r.setLocked(&merged)
	return true, nil
}

// Put replaces an order already in the collection with o.
func (r *Reconciler) Put(o order.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; !ok {
		return false
	}
	c := o.Clone()
	r.setLocked(&c)
	return true
}

// Patch applies fn to a copy of the order with id and stores the result.
func (r *Reconciler) Patch(id order.ID, fn func(o *order.Order)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return false
	}
	patched := current.Clone()
	fn(&patched)
	patched.ID = id
	r.setLocked(&patched)
	return true
}

func (r *Reconciler) Get(id order.ID) (order.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return o.Clone(), true
}

// Snapshot returns copies of every order in no particular order.
func (r *Reconciler) Snapshot() []order.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o.Clone())
	}
	return out
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// Counts returns how many orders are in each status.
func (r *Reconciler) Counts() map[orderstatus.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[orderstatus.Status]int, len(r.byStatus))
	for s, ids := range r.byStatus {
		counts[s] = len(ids)
	}
	return counts
}

func (r *Reconciler) setLocked(o *order.Order) {
	if old, ok := r.orders[o.ID]; ok {
		r.removeFromIndex(old.Status, o.ID)
	}
	r.orders[o.ID] = o
	r.byStatus[o.Status] = append(r.byStatus[o.Status], o.ID)
}

func (r *Reconciler) removeFromIndex(status orderstatus.Status, id order.ID) {
	ids := r.byStatus[status]
	for i, v := range ids {
		if v == id {
			r.byStatus[status] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byStatus[status]) == 0 {
		delete(r.byStatus, status)
	}
}

func idFromData(data json.RawMessage) order.ID {
	var probe struct {
		ID order.ID `json:"id"`
	}
	if len(data) == 0 || json.Unmarshal(data, &probe) != nil {
		return 0
	}
	return probe.ID
}
