package kitchen

import "time"

// Profile selects which slice of the queue a controller follows and how
// often it polls while the live channel is down.
type Profile struct {
	Name         string
	PollInterval time.Duration
	// Table restricts the queue to a single table when non zero.
	Table int64
}

var KitchenView = Profile{
	Name:         "kitchen",
	PollInterval: 60 * time.Second,
}

// TableView follows the orders of one table from the dining room.
func TableView(table int64) Profile {
	return Profile{
		Name:         "table",
		PollInterval: 30 * time.Second,
		Table:        table,
	}
}
