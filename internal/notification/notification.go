package notification

import (
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventCreated   Event = "created"
	EventUpdated   Event = "updated"
	EventCancelled Event = "cancelled"
	EventReminder  Event = "reminder"
)

type Method string

const (
	MethodEmail Method = "email"
	MethodSMS   Method = "sms"
)

type Recipient string

const (
	RecipientPatient  Recipient = "patient"
	RecipientProvider Recipient = "provider"
)

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Notice carries everything needed to render one appointment event for both parties.
type Notice struct {
	AppointmentID   uuid.UUID
	Event           Event
	StartTime       time.Time
	Duration        time.Duration
	AppointmentType string
	Reason          string
	FacilityName    string
	Patient         Contact
	Provider        Contact
}

// Delivery is one successful send, stored in the appointment's notification history.
type Delivery struct {
	Type      Method    `json:"type"`
	Recipient Recipient `json:"recipient"`
	Method    Method    `json:"method"`
	SentAt    time.Time `json:"sent_at"`
}
