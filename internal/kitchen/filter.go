package kitchen

import (
	"strings"

	"github.com/appetiteclub/appetite-client/internal/queue"
	"github.com/appetiteclub/appetite-client/pkg/enums/orderstatus"
)

// Filter is a display bucket over the queue. It never triggers a fetch.
type Filter string

const (
	FilterAll           Filter = "all"
	FilterUrgent        Filter = "urgent"
	FilterInPreparation Filter = "in_preparation"
	FilterPending       Filter = "pending"
)

var Filters = []Filter{
	FilterAll,
	FilterUrgent,
	FilterInPreparation,
	FilterPending,
}

func ParseFilter(name string) (Filter, bool) {
	candidate := Filter(strings.ToLower(strings.TrimSpace(name)))
	for _, f := range Filters {
		if f == candidate {
			return f, true
		}
	}
	return "", false
}

// Match reports whether e belongs in the bucket. Urgent covers both the
// urgent status and orders waiting past the urgency threshold.
func (f Filter) Match(e queue.Entry) bool {
	switch f {
	case FilterAll:
		return true
	case FilterUrgent:
		return e.StatusUrgent || e.TimeUrgent
	case FilterInPreparation:
		return e.Status == orderstatus.InPreparation
	case FilterPending:
		return e.Status == orderstatus.Created
	}
	return false
}

func (f Filter) String() string {
	return string(f)
}
