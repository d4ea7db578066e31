package core

import "pkt.systems/judgerelay/schema"

// EventSink receives session phase transitions from the coordinator.
type EventSink interface {
	OnSessionEvent(event schema.SessionSnapshot)
}
