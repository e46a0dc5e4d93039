package models

import "time"

// WireDecision is the per-event payload of an RSVP submission
type WireDecision struct {
	Attend  bool `json:"attend"`
	PlusOne *int `json:"plusOne,omitempty"`
}

// Decision is a guest's choice for one event before clamping
type Decision struct {
	Attend  bool
	PlusOne *int
}

// Decisions is indexed by Event; a nil entry means no decision was submitted
type Decisions [eventCount]*Decision

// DecisionsFromWire converts a wire map into Decisions. Unknown event names are dropped.
func DecisionsFromWire(in map[string]WireDecision) Decisions {
	var out Decisions
	for name, d := range in {
		e, ok := ParseEvent(name)
		if !ok {
			continue
		}
		out[e] = &Decision{Attend: d.Attend, PlusOne: d.PlusOne}
	}
	return out
}

// Count returns the number of submitted decisions
func (d Decisions) Count() int {
	n := 0
	for _, v := range d {
		if v != nil {
			n++
		}
	}
	return n
}

// ResponseSubmission is a validated RSVP ready to be persisted atomically
type ResponseSubmission struct {
	GuestID     int64
	Responses   []EventResponse
	TotalGuests int // 0 leaves the stored value untouched
	Message     string
	At          time.Time
}

// RecordResult is what the guest gets back after responding
type RecordResult struct {
	ResponsesCount int  `json:"responsesCount"`
	HasMessage     bool `json:"hasMessage"`
}

// EventAnswer is the current answer shown on an invitation
type EventAnswer struct {
	WillAttend bool `json:"willAttend"`
	PlusOne    int  `json:"plusOne"`
}

// Invitation is the guest-facing view of a personal RSVP link
type Invitation struct {
	ID           int64                  `json:"id"`
	FirstName    string                 `json:"firstName"`
	LastName     string                 `json:"lastName"`
	Email        string                 `json:"email,omitempty"`
	InvitedTo    EventSet               `json:"invitedTo"`
	Responses    map[string]EventAnswer `json:"responses"`
	TotalGuests  int                    `json:"totalGuests,omitempty"`
	HasResponded bool                   `json:"hasResponded"`
}

// InvitationStatus is the short form of Invitation
type InvitationStatus struct {
	HasResponded bool   `json:"hasResponded"`
	FirstName    string `json:"firstName"`
}

// ResponseNotice describes a recorded RSVP for side-effect notifiers
type ResponseNotice struct {
	Guest       Guest
	Responses   []EventResponse
	TotalGuests int
	Message     string
	At          time.Time
}
