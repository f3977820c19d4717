package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
)

// MockOrderService is a test mock for OrderService. It keeps a server side
// copy of the queue that ChangeStatus updates by default.
type MockOrderService struct {
	mu               sync.Mutex
	orders           []order.Order
	queueCalls       []api.QueueParams
	changeCalls      int
	QueueFunc        func(ctx context.Context, p api.QueueParams) ([]order.Order, error)
	ChangeStatusFunc func(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error)
}

func NewMockOrderService(orders ...order.Order) *MockOrderService {
	return &MockOrderService{orders: orders}
}

func (m *MockOrderService) Queue(ctx context.Context, p api.QueueParams) ([]order.Order, error) {
	m.mu.Lock()
	m.queueCalls = append(m.queueCalls, p)
	fn := m.QueueFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, p)
	}
	return m.snapshot(), nil
}

func (m *MockOrderService) ChangeStatus(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error) {
	m.mu.Lock()
	m.changeCalls++
	fn := m.ChangeStatusFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, target, motive)
	}
	return m.apply(id, target)
}

func (m *MockOrderService) apply(id order.ID, target orderstatus.Status) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = target
			o := m.orders[i].Clone()
			return &o, nil
		}
	}
	return nil, &api.Error{Kind: api.KindServer, Status: 404, Message: "Not found."}
}

func (m *MockOrderService) snapshot() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out
}

func (m *MockOrderService) setOrders(orders ...order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = orders
}

func (m *MockOrderService) setQueueFunc(fn func(ctx context.Context, p api.QueueParams) ([]order.Order, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueueFunc = fn
}

func (m *MockOrderService) queueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queueCalls)
}

func (m *MockOrderService) lastQueueParams() api.QueueParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueCalls[len(m.queueCalls)-1]
}

func (m *MockOrderService) changeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changeCalls
}

// MockChannel is a test mock for Channel. Tests drive the controller through
// the callbacks it was built with.
type MockChannel struct {
	mu         sync.Mutex
	opts       live.Options
	status     live.Status
	starts     int
	stops      int
	reconnects int
}

func NewMockChannel(opts live.Options) *MockChannel {
	return &MockChannel{opts: opts, status: live.StatusIdle}
}

func (m *MockChannel) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return nil
}

func (m *MockChannel) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.status = live.StatusIdle
	return nil
}

func (m *MockChannel) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

func (m *MockChannel) Status() live.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockChannel) emit(s live.Status) {
	m.mu.Lock()
	m.status = s
	cb := m.opts.OnStatus
	m.mu.Unlock()
	cb(s)
}

func (m *MockChannel) push(format string, args ...any) {
	m.opts.OnMessage(json.RawMessage(fmt.Sprintf(format, args...)))
}
