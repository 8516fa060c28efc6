package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/notification"
)

// TargetType is the audit model name for appointments.
const TargetType = "appointments.Appointment"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses still occupy their time window and block overlapping bookings.
var ActiveStatuses = []Status{StatusScheduled, StatusNoShow}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusNoShow
}

// CanTransition reports whether from -> to is allowed. Only scheduled appointments
// move; completed, cancelled and no_show are terminal.
func CanTransition(from, to Status) bool {
	if from != StatusScheduled {
		return false
	}
	switch to {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Provider struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Role      string
	UserType  string
	IsActive  bool
}

func (p Provider) FullName() string {
	return fullName(p.FirstName, p.LastName)
}

type Patient struct {
	ID            uuid.UUID
	PatientNumber string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	IsActive      bool
}

func (p Patient) FullName() string {
	return fullName(p.FirstName, p.LastName)
}

type Facility struct {
	ID           uuid.UUID
	Name         string
	FacilityType string
	Phone        string
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	FacilityID        uuid.UUID
	AppointmentType   string
	Reason            string
	Status            Status
	StartTime         time.Time
	EndTime           time.Time
	NotificationsSent []notification.Delivery
	CreatedBy         *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Hydrated by reads that join the participants.
	PatientName  string
	ProviderName string
	FacilityName string
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

func (a Appointment) IsUpcoming(now time.Time) bool {
	return a.Status == StatusScheduled && a.StartTime.After(now)
}

func (a Appointment) IsActive() bool {
	return a.Status.IsActive()
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
