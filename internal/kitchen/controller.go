package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/internal/queue"
	"github.com/appetiteclub/appetite-client/internal/timers"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
	"github.com/appetiteclub/appetite-client/pkg/enums/role"
	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultDisconnectGrace = 10 * time.Second

	subscriberBuffer = 16
)

var (
	ErrInFlight      = errors.New("a status change for this order is already in progress")
	ErrUnknownOrder  = errors.New("order is not in the queue")
	ErrStopped       = errors.New("controller is stopped")
	ErrUnknownFilter = errors.New("unknown filter")
)

// OrderService is the part of the REST API the controller uses.
type OrderService interface {
	Queue(ctx context.Context, p api.QueueParams) ([]order.Order, error)
	ChangeStatus(ctx context.Context, id order.ID, target orderstatus.Status, motive string) (*order.Order, error)
}

// Channel is the live connection feeding the controller.
type Channel interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reconnect()
	Status() live.Status
}

type Options struct {
	Service OrderService
	Role    role.Role
	Profile Profile

	// Live configures the channel. The controller installs its own callbacks,
	// clock and logger.
	Live live.Options
	// NewChannel builds the channel from Live. Defaults to live.NewManager.
	NewChannel func(opts live.Options) Channel

	RecentHours     int
	UrgentAfter     time.Duration
	DisconnectGrace time.Duration

	Clock  clockwork.Clock
	Logger apt.Logger
}

// Change is sent to subscribers whenever the view may have changed.
type Change struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Controller keeps a live view of the kitchen queue: it fetches, listens to
// the live channel, polls while the channel is down and applies status
// changes optimistically.
type Controller struct {
	opts      Options
	svc       OrderService
	clock     clockwork.Clock
	log       apt.Logger
	recon     *queue.Reconciler
	channel   Channel
	poller    *timers.Poller
	staleness *timers.Debouncer

	mu              sync.RWMutex
	alive           bool
	started         bool
	ctx             context.Context
	cancel          context.CancelFunc
	filter          Filter
	inFlight        map[order.ID]*Mutation
	mutations       map[order.ID]Mutation
	banner          *api.Banner
	bannerFromFetch bool
	fetchFailed     bool
	connStatus      live.Status
	everConnected   bool
	disconnected    bool
	lastRefresh     time.Time
	subscribers     map[string]chan Change
}

func NewController(opts Options) (*Controller, error) {
	if opts.Service == nil {
		return nil, errors.New("kitchen: order service required")
	}
	if opts.Role == "" {
		return nil, errors.New("kitchen: role required")
	}
	if opts.Profile.PollInterval <= 0 {
		opts.Profile.PollInterval = KitchenView.PollInterval
	}
	if opts.Profile.Name == "" {
		opts.Profile.Name = KitchenView.Name
	}
	if opts.UrgentAfter <= 0 {
		opts.UrgentAfter = queue.DefaultUrgentAfter
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = DefaultDisconnectGrace
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = apt.NewNoopLogger()
	}
	if opts.NewChannel == nil {
		opts.NewChannel = func(o live.Options) Channel {
			return live.NewManager(o)
		}
	}

	c := &Controller{
		opts:        opts,
		svc:         opts.Service,
		clock:       opts.Clock,
		log:         opts.Logger.With("component", "kitchen", "profile", opts.Profile.Name),
		filter:      FilterAll,
		inFlight:    make(map[order.ID]*Mutation),
		mutations:   make(map[order.ID]Mutation),
		connStatus:  live.StatusIdle,
		subscribers: make(map[string]chan Change),
	}
	c.recon = queue.NewReconciler(c.log)
	c.poller = timers.NewPoller(c.clock, opts.Profile.PollInterval, c.poll)
	c.staleness = timers.NewDebouncer(c.clock, opts.DisconnectGrace, c.showDisconnected)

	liveOpts := opts.Live
	liveOpts.Clock = c.clock
	liveOpts.Logger = opts.Logger
	liveOpts.OnMessage = c.onMessage
	liveOpts.OnStatus = c.onStatus
	liveOpts.OnError = c.onError
	c.channel = opts.NewChannel(liveOpts)

	return c, nil
}

// Start fetches the queue once and opens the live channel. Polling starts
// whenever the channel is not connected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.alive = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.log.Info("starting kitchen queue controller", "role", c.opts.Role)

	if err := c.Refresh(ctx); err != nil {
		c.log.Error("initial queue fetch failed", "error", err)
	}

	if err := c.channel.Start(c.ctx); err != nil {
		c.log.Error("cannot start live channel", "error", err)
	}
	if c.channel.Status() != live.StatusConnected {
		c.poller.Start()
	}
	return nil
}

// Stop tears down the poller, the staleness timer and the live channel.
// Callbacks that arrive afterwards are ignored.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil
	}
	c.alive = false
	cancel := c.cancel
	c.mu.Unlock()

	c.log.Info("stopping kitchen queue controller")

	c.poller.Close()
	c.staleness.Close()
	err := c.channel.Stop(ctx)
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()

	return err
}

// Refresh refetches the whole queue. A failure keeps the current collection
// and is surfaced as a banner.
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.isAlive() {
		return ErrStopped
	}

	seq := c.recon.Begin()
	orders, err := c.svc.Queue(ctx, api.QueueParams{
		RecentHours: c.opts.RecentHours,
		Table:       c.opts.Profile.Table,
	})
	if !c.isAlive() {
		return ErrStopped
	}
	if err != nil {
		c.mu.Lock()
		c.fetchFailed = true
		c.setBannerLocked(err, true)
		c.mu.Unlock()
		c.log.Error("queue fetch failed", "error", err)
		c.notify("error")
		return err
	}

	if table := c.opts.Profile.Table; table > 0 {
		orders = forTable(orders, table)
	}
	applied := c.recon.Replace(seq, orders)

	c.mu.Lock()
	c.lastRefresh = c.clock.Now()
	c.fetchFailed = false
	if c.bannerFromFetch {
		c.banner = nil
		c.bannerFromFetch = false
	}
	c.mu.Unlock()

	if applied {
		c.notify("refresh")
	}
	return nil
}

// ChangeStatus moves order id to target. The change is shown immediately and
// rolled back if the server rejects it. A second call for the same order
// while the first is in flight returns ErrInFlight without a network call.
func (c *Controller) ChangeStatus(ctx context.Context, id order.ID, target orderstatus.Status, motive string) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return ErrStopped
	}
	if _, busy := c.inFlight[id]; busy {
		c.mu.Unlock()
		return ErrInFlight
	}

	current, ok := c.recon.Get(id)
	if !ok {
		err := fmt.Errorf("%w: %d", ErrUnknownOrder, id)
		c.setBannerLocked(err, false)
		c.mu.Unlock()
		c.notify("error")
		return err
	}

	if err := c.checkLocked(current, target, motive); err != nil {
		c.setBannerLocked(err, false)
		c.mu.Unlock()
		c.notify("error")
		return err
	}

	mut := newMutation(current, target, motive, c.clock.Now())
	c.inFlight[id] = mut
	c.mu.Unlock()

	defer c.settle(mut)

	c.recon.Patch(id, func(o *order.Order) {
		o.Status = target
		o.AllowedTransitions = nil
	})
	c.notify("mutation")

	log := c.log.With("order_id", id, "from", mut.From, "to", target)
	updated, err := c.svc.ChangeStatus(ctx, id, target, motive)
	if err != nil {
		log.Error("status change failed", "error", err)
		c.mu.Lock()
		c.transitionLocked(mut, MutationFailed)
		mut.Err = err.Error()
		c.setBannerLocked(err, false)
		c.mu.Unlock()

		c.rollback(ctx, mut)
		return err
	}

	log.Info("status changed")
	c.mu.Lock()
	c.transitionLocked(mut, MutationConfirmed)
	c.mu.Unlock()

	if updated != nil {
		c.recon.Put(*updated)
	}
	if err := c.Refresh(ctx); err != nil {
		log.Error("refresh after status change failed", "error", err)
	}
	return nil
}

func (c *Controller) checkLocked(current order.Order, target orderstatus.Status, motive string) error {
	if err := order.Check(c.opts.Role, current.Status, target); err != nil {
		return err
	}
	if len(current.AllowedTransitions) > 0 && !containsStatus(current.AllowedTransitions, target) {
		return fmt.Errorf("%w: %s is not offered for order %d", order.ErrNotAllowed, target, current.ID)
	}
	return order.ValidateMotive(target, motive)
}

// rollback restores the previous status and refetches so the collection
// matches the server again.
func (c *Controller) rollback(ctx context.Context, mut *Mutation) {
	c.recon.Patch(mut.OrderID, func(o *order.Order) {
		if o.Status == mut.To {
			o.Status = mut.From
		}
	})

	if err := c.Refresh(ctx); err != nil {
		c.log.Error("refresh after failed status change", "order_id", mut.OrderID, "error", err)
	}

	c.mu.Lock()
	c.transitionLocked(mut, MutationRolledBack)
	c.mu.Unlock()
}

func (c *Controller) settle(mut *Mutation) {
	c.mu.Lock()
	delete(c.inFlight, mut.OrderID)
	c.mutations[mut.OrderID] = *mut
	c.mu.Unlock()
	c.notify("mutation")
}

func (c *Controller) transitionLocked(mut *Mutation, to MutationState) {
	if err := mut.advance(to); err != nil {
		c.log.Error("invalid mutation transition", "error", err)
	}
}

// LastMutation returns the most recent finished status change for id.
func (c *Controller) LastMutation(id order.ID) (Mutation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.mutations[id]
	return m, ok
}

func (c *Controller) SetFilter(f Filter) error {
	if _, ok := ParseFilter(string(f)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, f)
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	c.notify("filter")
	return nil
}

func (c *Controller) DismissError() {
	c.mu.Lock()
	c.banner = nil
	c.bannerFromFetch = false
	c.mu.Unlock()
	c.notify("banner")
}

// Reconnect restarts the live channel after it gave up.
func (c *Controller) Reconnect() {
	if !c.isAlive() {
		return
	}
	c.channel.Reconnect()
}

// Subscribe registers a listener for view changes. Slow listeners miss
// changes rather than block the controller.
func (c *Controller) Subscribe() (string, <-chan Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Change, subscriberBuffer)
	if !c.alive && c.started {
		close(ch)
		return id, ch
	}
	c.subscribers[id] = ch
	c.log.Debug("new subscriber", "subscriber_id", id, "total_subscribers", len(c.subscribers))
	return id, ch
}

func (c *Controller) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
		c.log.Debug("subscriber removed", "subscriber_id", id, "total_subscribers", len(c.subscribers))
	}
}

func (c *Controller) notify(reason string) {
	change := Change{Reason: reason, At: c.clock.Now()}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, ch := range c.subscribers {
		select {
		case ch <- change:
		default:
			c.log.Debug("subscriber channel full, dropping change", "subscriber_id", id)
		}
	}
}

func (c *Controller) onMessage(data json.RawMessage) {
	if !c.isAlive() {
		return
	}

	action, err := c.recon.Apply(data)
	if err != nil {
		return
	}
	switch action {
	case queue.ActionRefresh:
		go c.refreshInBackground("order created")
	case queue.ActionUpdated:
		c.notify("update")
	}
}

func (c *Controller) onStatus(status live.Status) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.connStatus = status
	reconnected := status == live.StatusConnected && c.everConnected
	if status == live.StatusConnected {
		c.everConnected = true
		c.disconnected = false
	}
	if status == live.StatusMaxRetriesExceeded {
		c.bannerFromFetch = false
		c.banner = &api.Banner{
			Kind:       api.KindNetwork,
			Message:    "Live updates stopped after repeated connection failures.",
			Suggestion: "Reconnect to resume live updates. The queue keeps refreshing every few seconds meanwhile.",
		}
	}
	c.mu.Unlock()

	c.log.Debug("live channel status", "status", status)

	if status == live.StatusConnected {
		c.poller.Stop()
		c.staleness.Cancel()
		if reconnected {
			go c.refreshInBackground("reconnected")
		}
	} else {
		c.poller.Start()
		c.staleness.Trigger()
	}
	c.notify("connection")
}

func (c *Controller) onError(err error) {
	c.log.Debug("live channel error", "error", err)
}

func (c *Controller) poll() {
	c.refreshInBackground("poll")
}

func (c *Controller) refreshInBackground(reason string) {
	c.mu.RLock()
	ctx := c.ctx
	alive := c.alive
	c.mu.RUnlock()
	if !alive || ctx == nil {
		return
	}

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) {
		c.log.Debug("background refresh failed", "reason", reason, "error", err)
	}
}

func (c *Controller) showDisconnected() {
	c.mu.Lock()
	if !c.alive || c.connStatus == live.StatusConnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.mu.Unlock()
	c.notify("connection")
}

func (c *Controller) setBannerLocked(err error, fromFetch bool) {
	b := api.Describe(err)
	c.banner = &b
	c.bannerFromFetch = fromFetch
}

func (c *Controller) isAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

func forTable(orders []order.Order, table int64) []order.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.Table == table {
			out = append(out, o)
		}
	}
	return out
}

func containsStatus(list []orderstatus.Status, s orderstatus.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
