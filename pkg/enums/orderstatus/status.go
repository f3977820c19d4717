package orderstatus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order (pedido).
type Status string

const (
	Created       Status = "CREADO"
	Urgent        Status = "URGENTE"
	InPreparation Status = "EN_PREPARACION"
	Ready         Status = "LISTO"
	Delivered     Status = "ENTREGADO"
	Cancelled     Status = "CANCELADO"
)

var All = []Status{
	Created,
	Urgent,
	InPreparation,
	Ready,
	Delivered,
	Cancelled,
}

// ByName returns the status for a given name. Matching ignores case so both
// the uppercase read form and the lowercase write form resolve.
func ByName(name string) (Status, bool) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(name)))
	for _, s := range All {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// Code is the lowercase form the status endpoint expects.
func (s Status) Code() string {
	return strings.ToLower(string(s))
}

func (s Status) Valid() bool {
	_, ok := ByName(string(s))
	return ok
}

// Terminal reports whether no further transition exists from s.
func (s Status) Terminal() bool {
	switch s {
	case Delivered, Cancelled:
		return true
	case Created, Urgent, InPreparation, Ready:
		return false
	}
	return false
}

func (s Status) Label() string {
	return s.Meta().Label
}

func (s Status) String() string {
	return string(s)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	parsed, ok := ByName(raw)
	if !ok {
		return fmt.Errorf("order status: unknown value %q", raw)
	}
	*s = parsed
	return nil
}

// Meta is presentation data for a status. It carries no business meaning.
type Meta struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func (s Status) Meta() Meta {
	switch s {
	case Created:
		return Meta{Label: "Created", Color: "blue", Icon: "receipt"}
	case Urgent:
		return Meta{Label: "Urgent", Color: "red", Icon: "alert-triangle"}
	case InPreparation:
		return Meta{Label: "In Preparation", Color: "orange", Icon: "flame"}
	case Ready:
		return Meta{Label: "Ready", Color: "green", Icon: "check-circle"}
	case Delivered:
		return Meta{Label: "Delivered", Color: "gray", Icon: "truck"}
	case Cancelled:
		return Meta{Label: "Cancelled", Color: "dark", Icon: "x-circle"}
	}
	return Meta{Label: "Unknown", Color: "gray", Icon: "help-circle"}
}
