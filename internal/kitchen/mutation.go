package kitchen

import (
	"fmt"
	"time"

	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
)

// MutationState tracks an optimistic status change.
type MutationState string

const (
	MutationPending    MutationState = "pending"
	MutationConfirmed  MutationState = "confirmed"
	MutationFailed     MutationState = "failed"
	MutationRolledBack MutationState = "rolled_back"
)

func (s MutationState) next() []MutationState {
	switch s {
	case MutationPending:
		return []MutationState{MutationConfirmed, MutationFailed}
	case MutationFailed:
		return []MutationState{MutationRolledBack}
	case MutationConfirmed, MutationRolledBack:
		return nil
	}
	return nil
}

// Mutation is one status change applied locally before the server confirmed it.
type Mutation struct {
	OrderID   order.ID           `json:"order_id"`
	From      orderstatus.Status `json:"from"`
	To        orderstatus.Status `json:"to"`
	Motive    string             `json:"motive,omitempty"`
	State     MutationState      `json:"state"`
	StartedAt time.Time          `json:"started_at"`
	Err       string             `json:"error,omitempty"`
}

func newMutation(o order.Order, to orderstatus.Status, motive string, now time.Time) *Mutation {
	return &Mutation{
		OrderID:   o.ID,
		From:      o.Status,
		To:        to,
		Motive:    motive,
		State:     MutationPending,
		StartedAt: now,
	}
}

func (m *Mutation) advance(to MutationState) error {
	for _, allowed := range m.State.next() {
		if allowed == to {
			m.State = to
			return nil
		}
	}
	return fmt.Errorf("mutation %d: cannot go from %s to %s", m.OrderID, m.State, to)
}

// Done reports whether the mutation reached a final state.
func (m *Mutation) Done() bool {
	return len(m.State.next()) == 0
}
