package monitor

import "time"

// Component is the health of one dependency. Disabled components are not
// configured in this deployment and never make the service offline.
type Component struct {
	Enabled bool `json:"enabled"`
	Healthy bool `json:"healthy"`
}

// Up reports whether the component is healthy or not in use.
func (c Component) Up() bool {
	return !c.Enabled || c.Healthy
}

type Status struct {
	PostgreSQL   Component `json:"postgresql"`
	Redis        Component `json:"redis"`
	Inbox        Component `json:"inbox"`
	InboxPending int       `json:"inbox_pending"`
	InboxDead    int       `json:"inbox_dead"`
	LastCheck    time.Time `json:"last_check"`
}

// Online reports whether the storage the engine writes to is reachable.
func (s Status) Online() bool {
	return s.PostgreSQL.Up() && s.Redis.Up()
}
