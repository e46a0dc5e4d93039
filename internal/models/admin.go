package models

import "time"

// EventStats aggregates answers for one event
type EventStats struct {
	Invited   int `json:"invited"`
	Attending int `json:"attending"`
	Declined  int `json:"declined"`
	Headcount int `json:"headcount"`
}

// Stats is the admin dashboard summary
type Stats struct {
	TotalGuests       int                   `json:"totalGuests"`
	EmailsSent        int                   `json:"emailsSent"`
	SMSSent           int                   `json:"smsSent"`
	WhatsAppSent      int                   `json:"whatsappSent"`
	ResponsesReceived int                   `json:"responsesReceived"`
	MessagesReceived  int                   `json:"messagesReceived"`
	PublicResponses   int                   `json:"publicResponses"`
	LastResponseAt    *time.Time            `json:"lastResponseAt,omitempty"`
	Events            map[string]EventStats `json:"events"`
}

// ResponseRow is an event response joined with its guest
type ResponseRow struct {
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email,omitempty"`
	EventName  string    `json:"event_name"`
	WillAttend bool      `json:"will_attend"`
	PlusOne    int       `json:"plus_one"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MessageRow is a message joined with its guest
type MessageRow struct {
	Message
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}
