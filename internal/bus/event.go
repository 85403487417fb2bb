package bus

import "time"

// Event kinds published by the relay. Subscribers filter by namespace prefix,
// e.g. "message." matches both message kinds.
const (
	KindUserRegistered   = "user.registered"
	KindMessageCreated   = "message.created"
	KindMessageDelivered = "message.delivered"
	KindPresenceChanged  = "presence.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
