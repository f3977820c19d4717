package intake

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Dish is the menu snapshot a cart line was added from.
type Dish struct {
	ID    int64           `json:"id" yaml:"id"`
	Name  string          `json:"nombre" yaml:"name"`
	Price decimal.Decimal `json:"precio" yaml:"price"`
}

type Line struct {
	Dish     Dish   `json:"dish"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// Total is the line price preview. The backend computes the real total.
func (l Line) Total() decimal.Decimal {
	return l.Dish.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart holds the lines of an order being composed. Lines keep the order in
// which dishes were first added.
type Cart struct {
	mu    sync.Mutex
	lines map[int64]*Line
	order []int64
}

func NewCart() *Cart {
	return &Cart{lines: make(map[int64]*Line)}
}

// Add puts one more unit of d in the cart.
func (c *Cart) Add(d Dish) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[d.ID]; ok {
		l.Quantity++
		return
	}
	c.lines[d.ID] = &Line{Dish: d, Quantity: 1}
	c.order = append(c.order, d.ID)
}

func (c *Cart) Remove(dishID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(dishID)
}

// SetQuantity sets the units of a dish already in the cart. Anything below
// one removes the line.
func (c *Cart) SetQuantity(dishID int64, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[dishID]
	if !ok {
		return
	}
	if qty < 1 {
		c.removeLocked(dishID)
		return
	}
	l.Quantity = qty
}

func (c *Cart) Increment(dishID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[dishID]; ok {
		l.Quantity++
	}
}

func (c *Cart) Decrement(dishID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[dishID]
	if !ok {
		return
	}
	l.Quantity--
	if l.Quantity < 1 {
		c.removeLocked(dishID)
	}
}

func (c *Cart) SetNotes(dishID int64, notes string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[dishID]; ok {
		l.Notes = notes
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

func (c *Cart) Quantity(dishID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[dishID]; ok {
		return l.Quantity
	}
	return 0
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order) == 0
}

// Subtotal is the sum of the line previews.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines() {
		total = total.Add(l.Total())
	}
	return total
}

func (c *Cart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = make(map[int64]*Line)
	c.order = nil
}

func (c *Cart) removeLocked(dishID int64) {
	if _, ok := c.lines[dishID]; !ok {
		return
	}
	delete(c.lines, dishID)
	for i, id := range c.order {
		if id == dishID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
