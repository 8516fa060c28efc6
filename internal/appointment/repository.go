package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/notification"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrFacilityNotFound    = errors.New("facility not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrAppointmentChanged means the stored status no longer matches what the
	// caller read; another writer got there first.
	ErrAppointmentChanged = errors.New("appointment changed concurrently")
)

// ListFilter narrows appointment listings. Zero values mean "any".
type ListFilter struct {
	ProviderID      *uuid.UUID
	PatientID       *uuid.UUID
	FacilityID      *uuid.UUID
	Status          Status
	AppointmentType string
	StartsAfter     *time.Time
	Limit           int
	Offset          int
}

// Names returns the filters that are set, for the audit trail.
func (f ListFilter) Names() []string {
	var names []string
	if f.ProviderID != nil {
		names = append(names, "provider")
	}
	if f.PatientID != nil {
		names = append(names, "patient")
	}
	if f.FacilityID != nil {
		names = append(names, "facility")
	}
	if f.Status != "" {
		names = append(names, "status")
	}
	if f.AppointmentType != "" {
		names = append(names, "appointment_type")
	}
	if f.StartsAfter != nil {
		names = append(names, "starts_after")
	}
	return names
}

// Repository contains all DB interactions needed by the service. Implementations
// resolve the active transaction from ctx.
type Repository interface {
	OverlapFinder

	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error)

	// LockParticipants serializes bookings that share any participant with c
	// until the enclosing transaction ends.
	LockParticipants(ctx context.Context, c Candidate) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate also row-locks the appointment until the
	// enclosing transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListAppointments also reports how many rows match f ignoring paging.
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	// UpdateAppointment writes a only while the stored status still equals
	// expected, and returns ErrAppointmentChanged otherwise.
	UpdateAppointment(ctx context.Context, a *Appointment, expected Status) error
	// UpdateAppointmentStatus only applies when the stored status equals from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Reminder worker
	FindDueReminders(ctx context.Context, after, until time.Time) ([]Appointment, error)
	AppendNotifications(ctx context.Context, id uuid.UUID, deliveries []notification.Delivery) error
}
