package judgerelay

import (
	"pkt.systems/judgerelay/core"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnSessionEvent(event schema.SessionSnapshot) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionEvent(event)
	}
}

// sessionLog records phase transitions at debug level.
type sessionLog struct {
	log pslog.Logger
}

func (s sessionLog) OnSessionEvent(event schema.SessionSnapshot) {
	fields := []any{"session", event.ID, "tab", event.TargetTab, "source", event.Source, "phase", event.Phase}
	if event.Report != nil {
		fields = append(fields, "percent", event.Report.PercentComplete)
	}
	s.log.Debug("session phase", fields...)
}
