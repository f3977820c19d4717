package kitchen

import (
	"sort"
	"time"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/internal/queue"
	"github.com/appetiteclub/appetite-client/pkg/enums/role"
)

// Row is one order as shown on the board.
type Row struct {
	queue.Entry
	Actions  []order.Action `json:"actions"`
	InFlight bool           `json:"in_flight"`
}

// View is a point in time snapshot of everything a renderer needs.
type View struct {
	Profile      string         `json:"profile"`
	Role         role.Role      `json:"role"`
	Filter       Filter         `json:"filter"`
	Rows         []Row          `json:"rows"`
	Counts       map[Filter]int `json:"counts"`
	InFlight     []order.ID     `json:"in_flight"`
	Connection   live.Status    `json:"connection"`
	Disconnected bool           `json:"disconnected"`
	Banner       *api.Banner    `json:"banner,omitempty"`
	LastRefresh  time.Time      `json:"last_refresh"`
	Stale        bool           `json:"stale"`
}

func (c *Controller) View() View {
	c.mu.RLock()
	f := c.filter
	c.mu.RUnlock()
	return c.ViewFiltered(f)
}

// ViewFiltered is View with f in place of the board filter. The board filter
// is left as is.
func (c *Controller) ViewFiltered(f Filter) View {
	now := c.clock.Now()
	entries := c.recon.View(now, c.opts.UrgentAfter)

	c.mu.RLock()
	defer c.mu.RUnlock()

	v := View{
		Profile:      c.opts.Profile.Name,
		Role:         c.opts.Role,
		Filter:       f,
		Rows:         make([]Row, 0, len(entries)),
		Counts:       make(map[Filter]int, len(Filters)),
		InFlight:     make([]order.ID, 0, len(c.inFlight)),
		Connection:   c.connStatus,
		Disconnected: c.disconnected,
		LastRefresh:  c.lastRefresh,
		Stale:        c.fetchFailed || c.disconnected,
	}
	if c.banner != nil {
		b := *c.banner
		v.Banner = &b
	}

	for _, e := range entries {
		for _, f := range Filters {
			if f.Match(e) {
				v.Counts[f]++
			}
		}
		if !f.Match(e) {
			continue
		}
		_, busy := c.inFlight[e.ID]
		v.Rows = append(v.Rows, Row{
			Entry:    e,
			Actions:  order.Actions(c.opts.Role, e.Order),
			InFlight: busy,
		})
	}

	for id := range c.inFlight {
		v.InFlight = append(v.InFlight, id)
	}
	sort.Slice(v.InFlight, func(i, j int) bool { return v.InFlight[i] < v.InFlight[j] })

	return v
}

// Row finds id among the visible rows.
func (v View) Row(id order.ID) (Row, bool) {
	for _, r := range v.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}
