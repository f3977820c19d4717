package kitchen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/appetiteclub/appetite-client/pkg/enums/role"
	"github.com/appetiteclub/apt"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settle = 50 * time.Millisecond

var base = time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

func sample(id order.ID, status orderstatus.Status, minutesAgo int) order.Order {
	return order.Order{
		ID:        id,
		Table:     4,
		Status:    status,
		CreatedAt: base.Add(-time.Duration(minutesAgo) * time.Minute),
		Items:     []order.LineItem{{Dish: 1, DishName: "Lomo a lo pobre", Quantity: 1}},
	}
}

type fixture struct {
	ctrl    *Controller
	svc     *MockOrderService
	channel *MockChannel
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T, svc *MockOrderService, mutate func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{svc: svc, clock: clockwork.NewFakeClockAt(base)}

	opts := Options{
		Service: svc,
		Role:    role.Cook,
		Profile: KitchenView,
		Clock:   f.clock,
		NewChannel: func(o live.Options) Channel {
			f.channel = NewMockChannel(o)
			return f.channel
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	ctrl, err := NewController(opts)
	require.NoError(t, err)
	f.ctrl = ctrl
	t.Cleanup(func() { ctrl.Stop(context.Background()) })
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Start(context.Background()))
}

func (f *fixture) waitForTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, n))
}

func (f *fixture) status(id order.ID) orderstatus.Status {
	o, _ := f.ctrl.recon.Get(id)
	return o.Status
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}

func TestNewControllerValidation(t *testing.T) {
	_, err := NewController(Options{Role: role.Cook})
	assert.Error(t, err)

	_, err = NewController(Options{Service: NewMockOrderService()})
	assert.Error(t, err)
}

func TestStartFetchesAndPollsUntilConnected(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	f := newFixture(t, svc, func(o *Options) { o.RecentHours = 6 })

	f.start(t)
	assert.Equal(t, 1, svc.queueCount())
	assert.Equal(t, api.QueueParams{RecentHours: 6}, svc.lastQueueParams())
	assert.Equal(t, 1, f.channel.starts)
	assert.Len(t, f.ctrl.View().Rows, 1)

	f.waitForTimers(t, 1)
	f.clock.Advance(KitchenView.PollInterval)
	eventually(t, func() bool { return svc.queueCount() == 2 }, "poll while not connected")

	f.channel.emit(live.StatusConnected)
	f.clock.Advance(10 * KitchenView.PollInterval)
	time.Sleep(settle)
	assert.Equal(t, 2, svc.queueCount(), "no polling while connected")

	t.Run("pollResumesWhenChannelDrops", func(t *testing.T) {
		f.channel.emit(live.StatusDisconnected)
		f.waitForTimers(t, 2)
		f.clock.Advance(KitchenView.PollInterval)
		eventually(t, func() bool { return svc.queueCount() >= 3 }, "poll after drop")
	})
}

func TestStartIsIdempotent(t *testing.T) {
	svc := NewMockOrderService()
	f := newFixture(t, svc, nil)

	f.start(t)
	f.start(t)
	assert.Equal(t, 1, svc.queueCount())
	assert.Equal(t, 1, f.channel.starts)
}

func TestChangeStatusSingleNetworkCall(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	svc.ChangeStatusFunc = func(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error) {
		once.Do(func() { close(entered) })
		<-release
		return svc.apply(id, target)
	}

	f := newFixture(t, svc, nil)
	f.start(t)

	done := make(chan error, 1)
	go func() {
		done <- f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.InPreparation, "")
	}()
	<-entered

	v := f.ctrl.View()
	row, ok := v.Row(1)
	require.True(t, ok)
	assert.Equal(t, orderstatus.InPreparation, row.Status, "optimistic status shown while pending")
	assert.True(t, row.InFlight)
	assert.Equal(t, []order.ID{1}, v.InFlight)

	err := f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.InPreparation, "")
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, svc.changeCount())
	assert.Empty(t, f.ctrl.View().InFlight)
	assert.Equal(t, orderstatus.InPreparation, f.status(1))

	m, ok := f.ctrl.LastMutation(1)
	require.True(t, ok)
	assert.Equal(t, MutationConfirmed, m.State)
	assert.Equal(t, orderstatus.Created, m.From)
	assert.Equal(t, 2, svc.queueCount(), "full refresh after confirmation")
}

func TestChangeStatusRejectedLocally(t *testing.T) {
	tests := []struct {
		name     string
		role     role.Role
		order    order.Order
		target   orderstatus.Status
		motive   string
		wantErr  error
		wantKind api.Kind
	}{
		{
			name:     "roleDenied",
			role:     role.Cook,
			order:    sample(1, orderstatus.Ready, 5),
			target:   orderstatus.Delivered,
			wantErr:  order.ErrNotAllowed,
			wantKind: api.KindAuthorization,
		},
		{
			name:     "notATransition",
			role:     role.Admin,
			order:    sample(1, orderstatus.Delivered, 5),
			target:   orderstatus.Created,
			wantErr:  order.ErrNotAllowed,
			wantKind: api.KindAuthorization,
		},
		{
			name: "notOfferedByServer",
			role: role.Cook,
			order: func() order.Order {
				o := sample(1, orderstatus.Created, 5)
				o.AllowedTransitions = []orderstatus.Status{orderstatus.Cancelled}
				return o
			}(),
			target:   orderstatus.InPreparation,
			wantErr:  order.ErrNotAllowed,
			wantKind: api.KindAuthorization,
		},
		{
			name:     "shortCancelMotive",
			role:     role.Waiter,
			order:    sample(1, orderstatus.Created, 5),
			target:   orderstatus.Cancelled,
			motive:   "  no  ",
			wantErr:  order.ErrMotiveTooShort,
			wantKind: api.KindValidation,
		},
		{
			name:     "unknownOrder",
			role:     role.Admin,
			order:    sample(2, orderstatus.Created, 5),
			target:   orderstatus.InPreparation,
			wantErr:  ErrUnknownOrder,
			wantKind: api.KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMockOrderService(tt.order)
			f := newFixture(t, svc, func(o *Options) { o.Role = tt.role })
			f.start(t)

			err := f.ctrl.ChangeStatus(context.Background(), 1, tt.target, tt.motive)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, svc.changeCount(), "no network call")

			v := f.ctrl.View()
			require.NotNil(t, v.Banner)
			assert.Equal(t, tt.wantKind, v.Banner.Kind)
			assert.Empty(t, v.InFlight)
		})
	}
}

func TestChangeStatusCancelWithMotive(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	var gotMotive string
	svc.ChangeStatusFunc = func(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error) {
		gotMotive = motive
		return svc.apply(id, target)
	}
	f := newFixture(t, svc, func(o *Options) { o.Role = role.Waiter })
	f.start(t)

	require.NoError(t, f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.Cancelled, "cliente se fue sin pedir"))
	assert.Equal(t, "cliente se fue sin pedir", gotMotive)
	assert.Equal(t, orderstatus.Cancelled, f.status(1))
}

func TestChangeStatusFailureRollsBack(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	svc.ChangeStatusFunc = func(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error) {
		return nil, &api.Error{Kind: api.KindValidation, Status: 400, Message: "Transición no permitida"}
	}
	f := newFixture(t, svc, nil)
	f.start(t)

	err := f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.InPreparation, "")
	require.Error(t, err)
	assert.Equal(t, api.KindValidation, api.KindOf(err))

	assert.Equal(t, orderstatus.Created, f.status(1))
	assert.Equal(t, 2, svc.queueCount(), "refetch after failure")

	v := f.ctrl.View()
	require.NotNil(t, v.Banner)
	assert.Equal(t, "That status change is not permitted for this order.", v.Banner.Message)
	assert.Empty(t, v.InFlight)

	m, ok := f.ctrl.LastMutation(1)
	require.True(t, ok)
	assert.Equal(t, MutationRolledBack, m.State)
	assert.NotEmpty(t, m.Err)

	t.Run("rollbackSurvivesFailedRefetch", func(t *testing.T) {
		svc.setQueueFunc(func(ctx context.Context, p api.QueueParams) ([]order.Order, error) {
			return nil, &api.Error{Kind: api.KindNetwork, Message: "cannot reach the server"}
		})
		err := f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.InPreparation, "")
		require.Error(t, err)
		assert.Equal(t, orderstatus.Created, f.status(1))
		assert.Empty(t, f.ctrl.View().InFlight)
	})
}

func TestRefreshFailureKeepsStaleData(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5), sample(2, orderstatus.Urgent, 3))
	f := newFixture(t, svc, nil)
	f.start(t)
	require.Len(t, f.ctrl.View().Rows, 2)

	svc.setQueueFunc(func(ctx context.Context, p api.QueueParams) ([]order.Order, error) {
		return nil, &api.Error{Kind: api.KindTimeout, Message: "the request is taking too long"}
	})
	err := f.ctrl.Refresh(context.Background())
	require.Error(t, err)

	v := f.ctrl.View()
	assert.Len(t, v.Rows, 2)
	assert.True(t, v.Stale)
	require.NotNil(t, v.Banner)
	assert.Equal(t, api.KindTimeout, v.Banner.Kind)

	svc.setQueueFunc(nil)
	require.NoError(t, f.ctrl.Refresh(context.Background()))
	v = f.ctrl.View()
	assert.False(t, v.Stale)
	assert.Nil(t, v.Banner, "fetch banner clears once a fetch succeeds")
	assert.Equal(t, base, v.LastRefresh)
}

func TestMutationBannerOutlivesRefresh(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Ready, 5))
	f := newFixture(t, svc, nil)
	f.start(t)

	_ = f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.Delivered, "")
	require.NoError(t, f.ctrl.Refresh(context.Background()))
	require.NotNil(t, f.ctrl.View().Banner)

	f.ctrl.DismissError()
	assert.Nil(t, f.ctrl.View().Banner)
}

func TestSetFilter(t *testing.T) {
	svc := NewMockOrderService(
		sample(1, orderstatus.Created, 5),
		sample(2, orderstatus.Urgent, 3),
		sample(3, orderstatus.InPreparation, 20),
		sample(4, orderstatus.InPreparation, 2),
		sample(5, orderstatus.Ready, 1),
	)
	f := newFixture(t, svc, nil)
	f.start(t)

	tests := []struct {
		filter  Filter
		wantIDs []order.ID
	}{
		{filter: FilterAll, wantIDs: []order.ID{2, 3, 1, 4, 5}},
		{filter: FilterUrgent, wantIDs: []order.ID{2, 3}},
		{filter: FilterInPreparation, wantIDs: []order.ID{3, 4}},
		{filter: FilterPending, wantIDs: []order.ID{1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			require.NoError(t, f.ctrl.SetFilter(tt.filter))
			v := f.ctrl.View()

			ids := make([]order.ID, 0, len(v.Rows))
			for _, r := range v.Rows {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.filter, v.Filter)
			assert.Equal(t, map[Filter]int{FilterAll: 5, FilterUrgent: 2, FilterInPreparation: 2, FilterPending: 1}, v.Counts)
		})
	}

	t.Run("viewFilteredLeavesBoardFilter", func(t *testing.T) {
		require.NoError(t, f.ctrl.SetFilter(FilterPending))
		v := f.ctrl.ViewFiltered(FilterUrgent)
		require.Len(t, v.Rows, 2)
		assert.Equal(t, FilterUrgent, v.Filter)
		assert.Equal(t, FilterPending, f.ctrl.View().Filter)
	})

	assert.ErrorIs(t, f.ctrl.SetFilter("ready"), ErrUnknownFilter)
	assert.Equal(t, 1, svc.queueCount(), "filters never fetch")
}

func TestRowActions(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	f := newFixture(t, svc, nil)
	f.start(t)

	row, ok := f.ctrl.View().Row(1)
	require.True(t, ok)

	allowed := map[orderstatus.Status]bool{}
	for _, a := range row.Actions {
		allowed[a.Target] = a.Allowed
	}
	assert.Equal(t, map[orderstatus.Status]bool{
		orderstatus.InPreparation: true,
		orderstatus.Urgent:        true,
		orderstatus.Cancelled:     false,
	}, allowed)
}

func TestLiveMessages(t *testing.T) {
	svc := NewMockOrderService(sample(7, orderstatus.Created, 9))
	f := newFixture(t, svc, nil)
	f.start(t)
	f.channel.emit(live.StatusConnected)

	f.channel.push(`{"event_type":"pedido.actualizado","pedido_id":7,"data":{"estado":"EN_PREPARACION"}}`)
	row, ok := f.ctrl.View().Row(7)
	require.True(t, ok)
	assert.Equal(t, orderstatus.InPreparation, row.Status)
	assert.True(t, base.Add(-9*time.Minute).Equal(row.CreatedAt))
	assert.Equal(t, "9 min", row.Elapsed)

	f.channel.push(`{"event_type":"pedido.actualizado","pedido_id":404,"data":{"estado":"LISTO"}}`)
	assert.Len(t, f.ctrl.View().Rows, 1)

	f.channel.push(`garbage`)
	assert.Len(t, f.ctrl.View().Rows, 1)

	svc.setOrders(sample(7, orderstatus.InPreparation, 9), sample(8, orderstatus.Created, 0))
	f.channel.push(`{"event_type":"pedido.creado","pedido_id":8}`)
	eventually(t, func() bool { return len(f.ctrl.View().Rows) == 2 }, "created event triggers a refresh")
}

func TestPushedStatusUsesStaticTransitions(t *testing.T) {
	o := sample(1, orderstatus.Created, 5)
	o.AllowedTransitions = []orderstatus.Status{orderstatus.InPreparation, orderstatus.Urgent, orderstatus.Cancelled}
	svc := NewMockOrderService(o)
	f := newFixture(t, svc, nil)
	f.start(t)
	f.channel.emit(live.StatusConnected)

	f.channel.push(`{"event_type":"pedido.actualizado","pedido_id":1,"data":{"estado":"EN_PREPARACION"}}`)

	row, ok := f.ctrl.View().Row(1)
	require.True(t, ok)
	assert.Equal(t, orderstatus.InPreparation, row.Status)
	assert.Contains(t, row.Actions, order.Action{Target: orderstatus.Ready, Label: orderstatus.Ready.Label(), Allowed: true})
	for _, a := range row.Actions {
		assert.NotEqual(t, orderstatus.InPreparation, a.Target)
	}

	require.NoError(t, f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.Ready, ""))
	assert.Equal(t, 1, svc.changeCount())
	assert.Equal(t, orderstatus.Ready, f.status(1))
}

func TestDisconnectedIndicator(t *testing.T) {
	t.Run("shownAfterGrace", func(t *testing.T) {
		svc := NewMockOrderService()
		f := newFixture(t, svc, nil)
		f.start(t)
		f.channel.emit(live.StatusConnected)

		f.channel.emit(live.StatusDisconnected)
		f.waitForTimers(t, 2)
		assert.False(t, f.ctrl.View().Disconnected)

		f.clock.Advance(9 * time.Second)
		time.Sleep(settle)
		assert.False(t, f.ctrl.View().Disconnected)

		f.channel.emit(live.StatusReconnecting)
		f.clock.Advance(time.Second)
		eventually(t, func() bool { return f.ctrl.View().Disconnected }, "indicator after 10s")
		assert.True(t, f.ctrl.View().Stale)
	})

	t.Run("hiddenWhenBackWithinGrace", func(t *testing.T) {
		svc := NewMockOrderService()
		f := newFixture(t, svc, nil)
		f.start(t)
		f.channel.emit(live.StatusConnected)

		f.channel.emit(live.StatusDisconnected)
		f.waitForTimers(t, 2)
		f.clock.Advance(5 * time.Second)
		f.channel.emit(live.StatusConnected)

		f.clock.Advance(time.Minute)
		time.Sleep(settle)
		v := f.ctrl.View()
		assert.False(t, v.Disconnected)
		assert.Equal(t, live.StatusConnected, v.Connection)
		eventually(t, func() bool { return svc.queueCount() == 2 }, "refresh on reconnect")
	})
}

func TestMaxRetriesBanner(t *testing.T) {
	svc := NewMockOrderService()
	f := newFixture(t, svc, nil)
	f.start(t)

	f.channel.emit(live.StatusMaxRetriesExceeded)
	v := f.ctrl.View()
	require.NotNil(t, v.Banner)
	assert.Equal(t, live.StatusMaxRetriesExceeded, v.Connection)

	f.ctrl.Reconnect()
	assert.Equal(t, 1, f.channel.reconnects)
}

func TestTableViewProfile(t *testing.T) {
	mine := sample(1, orderstatus.Created, 5)
	other := sample(2, orderstatus.Created, 5)
	other.Table = 9

	svc := NewMockOrderService(mine, other)
	f := newFixture(t, svc, func(o *Options) {
		o.Profile = TableView(4)
		o.Role = role.Waiter
	})
	f.start(t)

	assert.Equal(t, int64(4), svc.lastQueueParams().Table)
	v := f.ctrl.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, order.ID(1), v.Rows[0].ID)
	assert.Equal(t, "table", v.Profile)

	f.waitForTimers(t, 1)
	f.clock.Advance(30 * time.Second)
	eventually(t, func() bool { return svc.queueCount() == 2 }, "table view polls every 30s")
}

func TestSubscribe(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	f := newFixture(t, svc, nil)
	id, changes := f.ctrl.Subscribe()

	f.start(t)
	select {
	case ch := <-changes:
		assert.Equal(t, "refresh", ch.Reason)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	f.ctrl.Unsubscribe(id)
	_, open := <-changes
	assert.False(t, open)
	f.ctrl.Unsubscribe(id)
}

func TestStopSilencesCallbacks(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	f := newFixture(t, svc, nil)
	f.start(t)
	_, changes := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Stop(context.Background()))
	require.NoError(t, f.ctrl.Stop(context.Background()))
	assert.Equal(t, 1, f.channel.stops)

	_, open := <-changes
	assert.False(t, open, "subscribers closed on stop")

	f.channel.emit(live.StatusDisconnected)
	f.channel.push(`{"event_type":"pedido.creado","pedido_id":2}`)
	f.clock.Advance(time.Hour)
	time.Sleep(settle)

	assert.Equal(t, 1, svc.queueCount())
	assert.False(t, f.ctrl.View().Disconnected)
	assert.ErrorIs(t, f.ctrl.Refresh(context.Background()), ErrStopped)
	assert.ErrorIs(t, f.ctrl.ChangeStatus(context.Background(), 1, orderstatus.InPreparation, ""), ErrStopped)
	assert.False(t, errors.Is(f.ctrl.SetFilter(FilterUrgent), ErrStopped))
}

// hookLogger runs hook the first time msg is logged at debug level.
type hookLogger struct {
	apt.Logger
	msg string

	mu   sync.Mutex
	hook func()
}

func (l *hookLogger) With(args ...any) apt.Logger { return l }

func (l *hookLogger) Debug(v ...any) {
	if len(v) == 0 || v[0] != l.msg {
		return
	}
	l.mu.Lock()
	hook := l.hook
	l.hook = nil
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (l *hookLogger) setHook(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

func TestStopDuringStatusCallbackKeepsTimersDown(t *testing.T) {
	svc := NewMockOrderService(sample(1, orderstatus.Created, 5))
	logger := &hookLogger{Logger: apt.NewNoopLogger(), msg: "live channel status"}
	f := newFixture(t, svc, func(o *Options) { o.Logger = logger })
	f.start(t)
	f.channel.emit(live.StatusConnected)
	require.False(t, f.ctrl.poller.Running())

	logger.setHook(func() { require.NoError(t, f.ctrl.Stop(context.Background())) })
	f.channel.emit(live.StatusDisconnected)

	assert.False(t, f.ctrl.poller.Running())
	assert.False(t, f.ctrl.staleness.Pending())

	f.clock.Advance(time.Hour)
	time.Sleep(settle)
	assert.Equal(t, 1, svc.queueCount())
}

func TestMutationStateMachine(t *testing.T) {
	m := newMutation(sample(1, orderstatus.Created, 0), orderstatus.InPreparation, "", base)
	assert.Equal(t, MutationPending, m.State)
	assert.False(t, m.Done())

	assert.Error(t, m.advance(MutationRolledBack))
	require.NoError(t, m.advance(MutationFailed))
	assert.False(t, m.Done())
	require.NoError(t, m.advance(MutationRolledBack))
	assert.True(t, m.Done())
	assert.Error(t, m.advance(MutationConfirmed))
}
