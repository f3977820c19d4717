package role

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the staff role of the signed-in actor.
type Role string

const (
	Admin   Role = "ADMINISTRADOR"
	Cook    Role = "COCINERO"
	Waiter  Role = "MESERO"
	Cashier Role = "CAJERO"
)

var All = []Role{
	Admin,
	Cook,
	Waiter,
	Cashier,
}

// ByName returns the role for a given name, ignoring case.
func ByName(name string) (Role, bool) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(name)))
	for _, r := range All {
		if r == candidate {
			return r, true
		}
	}
	return "", false
}

func (r Role) Label() string {
	switch r {
	case Admin:
		return "Administrator"
	case Cook:
		return "Cook"
	case Waiter:
		return "Waiter"
	case Cashier:
		return "Cashier"
	}
	return "Unknown"
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	parsed, ok := ByName(raw)
	if !ok {
		return fmt.Errorf("role: unknown value %q", raw)
	}
	*r = parsed
	return nil
}
