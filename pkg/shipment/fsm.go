package shipment

// Event identifies a state-machine transition by the event it represents,
// not the destination state.
type Event string

const (
	EventMarkCreated        Event = "mark_created"
	EventMarkLabelReady     Event = "mark_label_ready"
	EventMarkInTransit      Event = "mark_in_transit"
	EventMarkOutForDelivery Event = "mark_out_for_delivery"
	EventMarkDelivered      Event = "mark_delivered"
	EventMarkCancelled      Event = "mark_cancelled"
	EventMarkFailed         Event = "mark_failed"
	EventMarkReturned       Event = "mark_returned"
)

// transition describes one guarded state change: the states it is legal
// from and the state it lands in.
type transition struct {
	sources []Status
	target  Status
}

// nonTerminal lists every state a side-branch event (cancel/fail/return)
// may fire from.
var nonTerminal = []Status{
	StatusNew,
	StatusCreated,
	StatusLabelReady,
	StatusInTransit,
	StatusOutForDelivery,
}

// transitions is the allow-list backing Trigger and MayTrigger. Forward
// events accept any earlier state on the main chain so that skipped
// provider webhooks (e.g. a "delivered" arriving before "in_transit") still
// advance the shipment.
var transitions = map[Event]transition{
	EventMarkCreated: {
		sources: []Status{StatusNew},
		target:  StatusCreated,
	},
	EventMarkLabelReady: {
		sources: []Status{StatusCreated},
		target:  StatusLabelReady,
	},
	EventMarkInTransit: {
		sources: []Status{StatusCreated, StatusLabelReady},
		target:  StatusInTransit,
	},
	EventMarkOutForDelivery: {
		sources: []Status{StatusCreated, StatusLabelReady, StatusInTransit},
		target:  StatusOutForDelivery,
	},
	EventMarkDelivered: {
		sources: []Status{StatusCreated, StatusLabelReady, StatusInTransit, StatusOutForDelivery},
		target:  StatusDelivered,
	},
	EventMarkCancelled: {
		sources: nonTerminal,
		target:  StatusCancelled,
	},
	EventMarkFailed: {
		sources: nonTerminal,
		target:  StatusFailed,
	},
	EventMarkReturned: {
		sources: nonTerminal,
		target:  StatusReturned,
	},
}

// statusToEvent maps provider status strings to transition events. Unknown
// status strings match no event; callers treat that as a no-op.
var statusToEvent = map[string]Event{
	"created":          EventMarkCreated,
	"label_ready":      EventMarkLabelReady,
	"in_transit":       EventMarkInTransit,
	"out_for_delivery": EventMarkOutForDelivery,
	"delivered":        EventMarkDelivered,
	"cancelled":        EventMarkCancelled,
	"failed":           EventMarkFailed,
	"returned":         EventMarkReturned,
}

// EventForStatus returns the transition event for an external status string.
// The second return is false when the status matches no known event.
func EventForStatus(status string) (Event, bool) {
	ev, ok := statusToEvent[status]
	return ev, ok
}

// MayTrigger reports whether the event is legal from the shipment's current
// state. It never mutates the shipment, so callers can use it as a branch
// instead of catching InvalidTransitionError.
func (s *Shipment) MayTrigger(event Event) bool {
	t, ok := transitions[event]
	if !ok {
		return false
	}
	for _, src := range t.sources {
		if s.Status == src {
			return true
		}
	}
	return false
}

// Trigger applies the event to the shipment. Triggering an event whose
// target the shipment already occupies is a no-op success; any other state
// outside the allow-list fails with InvalidTransitionError. Only Status is
// touched.
func (s *Shipment) Trigger(event Event) error {
	t, ok := transitions[event]
	if !ok {
		return &InvalidTransitionError{Current: s.Status, Event: event}
	}
	if s.Status == t.target {
		return nil
	}
	if !s.MayTrigger(event) {
		return &InvalidTransitionError{
			Current: s.Status,
			Event:   event,
			Allowed: t.sources,
		}
	}
	s.Status = t.target
	return nil
}
