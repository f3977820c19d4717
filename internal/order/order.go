package order

import (
	"time"

	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/shopspring/decimal"
)

type ID = int64

// Order mirrors the pedido resource returned by the backend.
// Total is computed server side and is never sent back.
type Order struct {
	ID                 ID                   `json:"id"`
	Table              int64                `json:"mesa"`
	TableNumber        int                  `json:"mesa_numero,omitempty"`
	Status             orderstatus.Status   `json:"estado"`
	Items              []LineItem           `json:"detalles"`
	Notes              string               `json:"notas"`
	CreatedAt          time.Time            `json:"fecha_creacion"`
	Total              decimal.Decimal      `json:"total"`
	ReadyAt            *time.Time           `json:"fecha_listo,omitempty"`
	DeliveredAt        *time.Time           `json:"fecha_entrega,omitempty"`
	AllowedTransitions []orderstatus.Status `json:"transiciones_permitidas,omitempty"`
}

type LineItem struct {
	Dish     int64  `json:"plato"`
	DishName string `json:"plato_nombre,omitempty"`
	Quantity int    `json:"cantidad"`
	Notes    string `json:"notas"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = append([]LineItem(nil), o.Items...)
	}
	if o.AllowedTransitions != nil {
		c.AllowedTransitions = append([]orderstatus.Status(nil), o.AllowedTransitions...)
	}
	if o.ReadyAt != nil {
		t := *o.ReadyAt
		c.ReadyAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return c
}

func (o Order) IsUrgent() bool {
	return o.Status == orderstatus.Urgent
}
