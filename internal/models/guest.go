package models

import (
	"strings"
	"time"
)

// Family is the side of the couple a guest belongs to
type Family string

const (
	FamilyIbgui    Family = "Ibgui"
	FamilyChemaoun Family = "Chemaoun"
)

// Families lists the canonical family names
var Families = []Family{FamilyIbgui, FamilyChemaoun}

// Country is where a guest travels from
type Country string

const (
	CountryFrance   Country = "France"
	CountryEtranger Country = "Etranger"
)

// Channel is a notification channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Party size bounds for a declared total
const (
	MinPartySize = 1
	MaxPartySize = 20
)

// SendStatus records whether an invitation went out on a channel
type SendStatus struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// Guest represents a wedding guest
type Guest struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Token       string     `json:"-"`
	Family      Family     `json:"family"`
	Country     Country    `json:"country"`
	InvitedTo   EventSet   `json:"invited_to"`
	EmailStatus SendStatus `json:"email_status"`
	SMSStatus   SendStatus `json:"sms_status"`
	WAStatus    SendStatus `json:"whatsapp_status"`
	TotalGuests int        `json:"total_guests,omitempty"` // 0 when never declared
	CreatedAt   time.Time  `json:"created_at"`
}

// FullName returns "First Last"
func (g *Guest) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// EventResponse is a guest's answer for one event
type EventResponse struct {
	GuestID    int64     `json:"guest_id"`
	Event      Event     `json:"-"`
	EventName  string    `json:"event_name"`
	WillAttend bool      `json:"will_attend"`
	PlusOne    int       `json:"plus_one"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is a free-text note left by a guest when responding
type Message struct {
	ID        int64     `json:"id"`
	GuestID   int64     `json:"guest_id"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicResponse comes from the open RSVP form and is not linked to a guest
type PublicResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Guests    int       `json:"guests"`
	Events    EventSet  `json:"events"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GuestDetail is a guest together with its children
type GuestDetail struct {
	Guest
	Responses []EventResponse `json:"responses"`
	Messages  []Message       `json:"messages"`
}
