package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDecode(t *testing.T) {
	payload := `{
		"id": 7,
		"mesa": 3,
		"mesa_numero": 12,
		"estado": "en_preparacion",
		"detalles": [{"plato": 5, "plato_nombre": "Cazuela", "cantidad": 2, "notas": "sin cilantro"}],
		"notas": "",
		"fecha_creacion": "2026-10-17T12:00:00Z",
		"total": "15980.00",
		"transiciones_permitidas": ["LISTO", "CANCELADO"]
	}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(payload), &o))

	assert.Equal(t, ID(7), o.ID)
	assert.Equal(t, orderstatus.InPreparation, o.Status)
	assert.Equal(t, "15980", o.Total.String())
	assert.Len(t, o.Items, 1)
	assert.Equal(t, []orderstatus.Status{orderstatus.Ready, orderstatus.Cancelled}, o.AllowedTransitions)
}

func TestOrderDecodeRejectsUnknownStatus(t *testing.T) {
	var o Order
	err := json.Unmarshal([]byte(`{"id": 1, "estado": "PERDIDO"}`), &o)
	assert.Error(t, err)
}

func TestOrderClone(t *testing.T) {
	ready := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	o := Order{
		ID:      1,
		Items:   []LineItem{{Dish: 1, Quantity: 1}},
		ReadyAt: &ready,
	}

	c := o.Clone()
	c.Items[0].Quantity = 9
	*c.ReadyAt = ready.Add(time.Hour)

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, ready, *o.ReadyAt)
}
