package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
)

const DefaultRecentHours = 24

type QueueParams struct {
	RecentHours int
	// Table narrows the queue to one table when non zero.
	Table int64
}

// Queue fetches the active kitchen queue.
func (c *Client) Queue(ctx context.Context, p QueueParams) ([]order.Order, error) {
	hours := p.RecentHours
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	q := url.Values{}
	q.Set("horas_recientes", strconv.Itoa(hours))
	if p.Table > 0 {
		q.Set("mesa", strconv.FormatInt(p.Table, 10))
	}

	var orders []order.Order
	if err := c.do(ctx, http.MethodGet, "pedidos/cola/", q, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type statusChange struct {
	Status string `json:"estado"`
	Motive string `json:"motivo,omitempty"`
}

// ChangeStatus asks the backend to move order id to target. The backend has
// the final say on whether the transition is valid.
func (c *Client) ChangeStatus(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: missing order id", ErrInvalidInput)
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}

	body := statusChange{Status: target.Code(), Motive: motive}
	var updated order.Order
	path := fmt.Sprintf("pedidos/%d/estado/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

type CreateOrderRequest struct {
	Table       int64        `json:"mesa"`
	Reservation *int64       `json:"reserva,omitempty"`
	Notes       string       `json:"notas"`
	Items       []CreateLine `json:"detalles"`
}

type CreateLine struct {
	Dish     int64  `json:"plato"`
	Quantity int    `json:"cantidad"`
	Notes    string `json:"notas"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*order.Order, error) {
	if req.Table <= 0 {
		return nil, fmt.Errorf("%w: table is required", ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidInput)
	}

	var created order.Order
	if err := c.do(ctx, http.MethodPost, "pedidos/", nil, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetOrder(ctx context.Context, id order.ID) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("pedidos/%d/", id), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type ListParams struct {
	Status   orderstatus.Status
	Table    int64
	Search   string
	Ordering string
	Page     int
	PageSize int
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Status != "" {
		q.Set("estado", p.Status.Code())
	}
	if p.Table > 0 {
		q.Set("mesa", strconv.FormatInt(p.Table, 10))
	}
	if p.Search != "" {
		q.Set("busqueda", p.Search)
	}
	if p.Ordering != "" {
		q.Set("ordering", p.Ordering)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return q
}

// Page is one page of the order listing. Unpaginated responses come back as
// a single page holding everything.
type Page struct {
	Results  []order.Order `json:"results"`
	Count    int           `json:"count"`
	Next     string        `json:"next"`
	Previous string        `json:"previous"`
}

func (p *Page) HasNext() bool {
	return p.Next != ""
}

func (c *Client) ListOrders(ctx context.Context, p ListParams) (*Page, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "pedidos/", p.values(), nil, &raw); err != nil {
		return nil, err
	}

	page, err := decodePage(raw)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "unexpected response from server", Err: err}
	}
	return page, nil
}

func decodePage(raw json.RawMessage) (*Page, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var orders []order.Order
		if err := json.Unmarshal(trimmed, &orders); err != nil {
			return nil, err
		}
		return &Page{Results: orders, Count: len(orders)}, nil
	}

	var page Page
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FindOrder looks id up in the active queue first and falls back to the
// order resource.
func (c *Client) FindOrder(ctx context.Context, id order.ID, recentHours int) (*order.Order, error) {
	orders, err := c.Queue(ctx, QueueParams{RecentHours: recentHours})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], nil
		}
	}
	return c.GetOrder(ctx, id)
}
