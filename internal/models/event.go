package models

import (
	"encoding/json"
	"fmt"
)

// Event is one of the fixed wedding sub-events a guest may be invited to
type Event int

const (
	EventMairie Event = iota
	EventVinHonneur
	EventChabbat
	EventHouppa

	eventCount
)

// Events lists every event in display order
var Events = [eventCount]Event{EventMairie, EventVinHonneur, EventChabbat, EventHouppa}

var eventKeys = [eventCount]string{"mairie", "vin_honneur", "chabbat", "houppa"}

var eventLabels = [eventCount]string{
	"La Mairie",
	"Vin d'Honneur / Henné",
	"Le Chabbat",
	"Houppa / Soirée",
}

// Key returns the wire name of the event, also used as the event_name column
func (e Event) Key() string {
	if e < 0 || e >= eventCount {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventKeys[e]
}

// Label returns the human readable event name used in messages
func (e Event) Label() string {
	if e < 0 || e >= eventCount {
		return e.Key()
	}
	return eventLabels[e]
}

func (e Event) String() string { return e.Key() }

// ParseEvent resolves a wire name to an Event
func ParseEvent(key string) (Event, bool) {
	for i, k := range eventKeys {
		if k == key {
			return Event(i), true
		}
	}
	return 0, false
}

// EventSet holds one boolean per event. It is used for invitation flags and
// for the per-event booleans of a public response.
type EventSet [eventCount]bool

// Has reports whether the flag for e is set
func (s EventSet) Has(e Event) bool {
	if e < 0 || e >= eventCount {
		return false
	}
	return s[e]
}

// Set sets the flag for e
func (s *EventSet) Set(e Event, v bool) {
	if e < 0 || e >= eventCount {
		return
	}
	s[e] = v
}

// Any reports whether at least one flag is set
func (s EventSet) Any() bool {
	for _, v := range s {
		if v {
			return true
		}
	}
	return false
}

// Invited returns the events whose flag is set, in display order
func (s EventSet) Invited() []Event {
	var out []Event
	for _, e := range Events {
		if s[e] {
			out = append(out, e)
		}
	}
	return out
}

func (s EventSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]bool, eventCount)
	for _, e := range Events {
		m[e.Key()] = s[e]
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts an object keyed by event wire names whose values are
// either booleans or {"attend": bool} objects. Unknown keys are ignored.
func (s *EventSet) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = EventSet{}
	for k, raw := range m {
		e, ok := ParseEvent(k)
		if !ok {
			continue
		}
		var flag bool
		if err := json.Unmarshal(raw, &flag); err == nil {
			s[e] = flag
			continue
		}
		var d struct {
			Attend bool `json:"attend"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("event %s: expected a boolean or {\"attend\": bool}", k)
		}
		s[e] = d.Attend
	}
	return nil
}
