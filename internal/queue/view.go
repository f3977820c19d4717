package queue

import (
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/appetite-client/internal/order"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
)

const DefaultUrgentAfter = 15 * time.Minute

// Entry is an order with the fields derived at display time.
type Entry struct {
	order.Order
	ElapsedMinutes int              `json:"elapsed_minutes"`
	Elapsed        string           `json:"elapsed"`
	TimeUrgent     bool             `json:"time_urgent"`
	StatusUrgent   bool             `json:"status_urgent"`
	Meta           orderstatus.Meta `json:"meta"`
}

// View returns the collection sorted for display: urgent orders first, then
// oldest first.
func (r *Reconciler) View(now time.Time, urgentAfter time.Duration) []Entry {
	orders := r.Snapshot()
	Sort(orders)

	entries := make([]Entry, 0, len(orders))
	for _, o := range orders {
		entries = append(entries, NewEntry(o, now, urgentAfter))
	}
	return entries
}

func NewEntry(o order.Order, now time.Time, urgentAfter time.Duration) Entry {
	if urgentAfter <= 0 {
		urgentAfter = DefaultUrgentAfter
	}
	minutes := ElapsedMinutes(o.CreatedAt, now)
	return Entry{
		Order:          o,
		ElapsedMinutes: minutes,
		Elapsed:        ElapsedLabel(minutes),
		TimeUrgent:     minutes > int(urgentAfter/time.Minute),
		StatusUrgent:   o.IsUrgent(),
		Meta:           o.Status.Meta(),
	}
}

// Sort orders urgent status first, then by creation time, then by id.
func Sort(orders []order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.IsUrgent() != b.IsUrgent() {
			return a.IsUrgent()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ElapsedMinutes is the whole number of minutes since created, never negative.
func ElapsedMinutes(created, now time.Time) int {
	d := now.Sub(created)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func ElapsedLabel(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
