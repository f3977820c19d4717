package order

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/appetiteclub/appetite-client/pkg/enums/role"
)

// MinCancelMotive mirrors the server rule for cancellation reasons.
const MinCancelMotive = 10

var (
	ErrNotAllowed     = errors.New("transition not allowed for role")
	ErrMotiveTooShort = fmt.Errorf("cancellation motive must have at least %d characters", MinCancelMotive)
)

// Transition is a change from one status to another.
type Transition struct {
	From orderstatus.Status
	To   orderstatus.Status
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s", t.From, t.To)
}

// Targets returns the statuses reachable from s. Terminal statuses return nil.
func Targets(s orderstatus.Status) []orderstatus.Status {
	switch s {
	case orderstatus.Created:
		return []orderstatus.Status{orderstatus.InPreparation, orderstatus.Urgent, orderstatus.Cancelled}
	case orderstatus.Urgent:
		return []orderstatus.Status{orderstatus.InPreparation, orderstatus.Cancelled}
	case orderstatus.InPreparation:
		return []orderstatus.Status{orderstatus.Ready, orderstatus.Cancelled}
	case orderstatus.Ready:
		return []orderstatus.Status{orderstatus.Delivered}
	case orderstatus.Delivered, orderstatus.Cancelled:
		return nil
	}
	return nil
}

// RoleMay reports whether r is permitted to perform t, regardless of whether
// t exists in the status table.
func RoleMay(r role.Role, t Transition) bool {
	switch r {
	case role.Admin:
		return true
	case role.Cook:
		switch t {
		case Transition{orderstatus.Created, orderstatus.InPreparation},
			Transition{orderstatus.Urgent, orderstatus.InPreparation},
			Transition{orderstatus.InPreparation, orderstatus.Ready},
			Transition{orderstatus.Created, orderstatus.Urgent}:
			return true
		}
		return false
	case role.Waiter:
		switch t {
		case Transition{orderstatus.Ready, orderstatus.Delivered},
			Transition{orderstatus.Created, orderstatus.Urgent},
			Transition{orderstatus.Created, orderstatus.Cancelled}:
			return true
		}
		return false
	case role.Cashier:
		return t == Transition{orderstatus.Ready, orderstatus.Delivered}
	}
	return false
}

// Allowed is the intersection of the status table and the role table.
func Allowed(r role.Role, from, to orderstatus.Status) bool {
	for _, target := range Targets(from) {
		if target == to {
			return RoleMay(r, Transition{From: from, To: to})
		}
	}
	return false
}

// Check returns ErrNotAllowed wrapped with context when Allowed is false.
func Check(r role.Role, from, to orderstatus.Status) error {
	if Allowed(r, from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move an order from %s to %s", ErrNotAllowed, r.Label(), from.Label(), to.Label())
}

// ValidateMotive applies the client copy of the cancellation rule.
func ValidateMotive(to orderstatus.Status, motive string) error {
	if to != orderstatus.Cancelled {
		return nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(motive)) < MinCancelMotive {
		return ErrMotiveTooShort
	}
	return nil
}

// Action is a candidate transition for an order and whether r may click it.
type Action struct {
	Target  orderstatus.Status `json:"target"`
	Label   string             `json:"label"`
	Allowed bool               `json:"allowed"`
}

// Actions lists the transitions to render for o. The server list wins when
// present; otherwise the static table is used.
func Actions(r role.Role, o Order) []Action {
	candidates := o.AllowedTransitions
	if len(candidates) == 0 {
		candidates = Targets(o.Status)
	}

	actions := make([]Action, 0, len(candidates))
	for _, target := range candidates {
		actions = append(actions, Action{
			Target:  target,
			Label:   target.Label(),
			Allowed: Allowed(r, o.Status, target),
		})
	}
	return actions
}
