package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/notification"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// TransitionError is returned when a status change leaves a terminal state.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment is already %s", e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

// TxRunner runs fn in a unit of work bound to the returned ctx. db.Manager implements it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor is satisfied by *audit.Recorder.
type Auditor interface {
	LogFromContext(ctx context.Context, action audit.Action, targetType, targetID string, changes map[string]any) error
}

// Notifier is satisfied by *notification.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, n notification.Notice) []notification.Delivery
}

// ReminderGuard makes sure one reminder goes out per appointment across replicas.
type ReminderGuard interface {
	Acquire(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	Release(ctx context.Context, appointmentID uuid.UUID) error
}

type CreateInput struct {
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	FacilityID      uuid.UUID
	AppointmentType string
	Reason          string
	StartTime       time.Time
	EndTime         time.Time
}

func (in CreateInput) candidate() Candidate {
	return Candidate{
		ProviderID: in.ProviderID,
		PatientID:  in.PatientID,
		FacilityID: in.FacilityID,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
	}
}

func (in CreateInput) fields() []string {
	fields := []string{"patient", "provider", "facility", "start_time", "end_time"}
	if in.AppointmentType != "" {
		fields = append(fields, "appointment_type")
	}
	if in.Reason != "" {
		fields = append(fields, "reason")
	}
	return fields
}

// UpdateInput is a partial edit; nil fields keep their stored value.
type UpdateInput struct {
	PatientID       *uuid.UUID
	ProviderID      *uuid.UUID
	FacilityID      *uuid.UUID
	AppointmentType *string
	Reason          *string
	Status          *Status
	StartTime       *time.Time
	EndTime         *time.Time
}

func (in UpdateInput) fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(in.PatientID != nil, "patient")
	add(in.ProviderID != nil, "provider")
	add(in.FacilityID != nil, "facility")
	add(in.AppointmentType != nil, "appointment_type")
	add(in.Reason != nil, "reason")
	add(in.Status != nil, "status")
	add(in.StartTime != nil, "start_time")
	add(in.EndTime != nil, "end_time")
	return fields
}

func (in UpdateInput) apply(a Appointment) Appointment {
	if in.PatientID != nil {
		a.PatientID = *in.PatientID
	}
	if in.ProviderID != nil {
		a.ProviderID = *in.ProviderID
	}
	if in.FacilityID != nil {
		a.FacilityID = *in.FacilityID
	}
	if in.AppointmentType != nil {
		a.AppointmentType = *in.AppointmentType
	}
	if in.Reason != nil {
		a.Reason = *in.Reason
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
	if in.StartTime != nil {
		a.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		a.EndTime = *in.EndTime
	}
	return a
}

type Service struct {
	repo     Repository
	detector *Detector
	tx       TxRunner
	audit    Auditor
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx TxRunner, auditor Auditor, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		detector: NewDetector(repo),
		tx:       tx,
		audit:    auditor,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Create books a new appointment. The conflict check and the insert share one
// transaction, and the participants are locked before checking.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if err := validateWindow(in.StartTime, in.EndTime, s.now(), true); err != nil {
		return nil, err
	}

	var created *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkParticipants(ctx, &in.ProviderID, &in.PatientID, &in.FacilityID); err != nil {
			return err
		}
		if err := s.ensureNoConflicts(ctx, in.candidate(), nil); err != nil {
			return err
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       in.PatientID,
			ProviderID:      in.ProviderID,
			FacilityID:      in.FacilityID,
			AppointmentType: in.AppointmentType,
			Reason:          in.Reason,
			Status:          StatusScheduled,
			StartTime:       in.StartTime,
			EndTime:         in.EndTime,
			CreatedBy:       access.ActorID(access.PrincipalFromContext(ctx)),
		}
		if err := s.repo.CreateAppointment(ctx, appt); err != nil {
			return err
		}

		var err error
		created, err = s.repo.GetAppointmentByID(ctx, appt.ID)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}

		return s.audit.LogFromContext(ctx, audit.ActionCreate, TargetType, created.ID.String(), map[string]any{
			"fields": in.fields(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, created, notification.EventCreated, true)
	return created, nil
}

// Update applies a partial edit. Time or participant changes on an active
// appointment re-run the conflict check against everything but itself.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	var (
		updated *Appointment
		event   = notification.EventUpdated
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next := in.apply(*current)
		if !next.Status.Valid() {
			return invalid("status", fmt.Sprintf("%q is not a valid status.", next.Status))
		}
		if next.Status != current.Status && !CanTransition(current.Status, next.Status) {
			return &TransitionError{From: current.Status, To: next.Status}
		}

		startMoved := !next.StartTime.Equal(current.StartTime)
		if err := validateWindow(next.StartTime, next.EndTime, s.now(), startMoved); err != nil {
			return err
		}

		var providerID, patientID, facilityID *uuid.UUID
		if next.ProviderID != current.ProviderID {
			providerID = &next.ProviderID
		}
		if next.PatientID != current.PatientID {
			patientID = &next.PatientID
		}
		if next.FacilityID != current.FacilityID {
			facilityID = &next.FacilityID
		}
		if err := s.checkParticipants(ctx, providerID, patientID, facilityID); err != nil {
			return err
		}

		moved := startMoved || !next.EndTime.Equal(current.EndTime) ||
			providerID != nil || patientID != nil || facilityID != nil
		if moved && next.Status.IsActive() {
			if err := s.ensureNoConflicts(ctx, next.Candidate(), &id); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateAppointment(ctx, &next, current.Status); err != nil {
			if errors.Is(err, ErrAppointmentChanged) {
				return s.staleTransition(ctx, id, next.Status)
			}
			return err
		}

		updated, err = s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}

		changes := map[string]any{"fields": in.fields()}
		if next.Status != current.Status {
			changes["summary"] = statusSummary(current.Status, next.Status)
			event = statusEvent(next.Status)
		}
		return s.audit.LogFromContext(ctx, audit.ActionUpdate, TargetType, id.String(), changes)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, event, true)
	return updated, nil
}

// Delete removes the appointment for good and tells both parties it is cancelled.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := s.audit.LogFromContext(ctx, audit.ActionDelete, TargetType, id.String(), map[string]any{
			"summary": "record deleted",
		}); err != nil {
			return err
		}

		return s.repo.DeleteAppointment(ctx, id)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, deleted, notification.EventCancelled, false)
	return nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow)
}

// statusEvent is the notification sent when an appointment moves to status to.
func statusEvent(to Status) notification.Event {
	if to == StatusCancelled {
		return notification.EventCancelled
	}
	return notification.EventUpdated
}

func statusSummary(from, to Status) string {
	return fmt.Sprintf("status changed from %s to %s", from, to)
}

// staleTransition reports a write that lost to a concurrent status change,
// naming the status that is stored now.
func (s *Service) staleTransition(ctx context.Context, id uuid.UUID, to Status) error {
	latest, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	return &TransitionError{From: latest.Status, To: to}
}

// transition does not run conflict detection; leaving scheduled never adds occupancy.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	var result *Appointment
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return &TransitionError{From: current.Status, To: to}
		}

		if err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to); err != nil {
			if errors.Is(err, ErrAppointmentChanged) {
				return s.staleTransition(ctx, id, to)
			}
			return err
		}

		result, err = s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}

		return s.audit.LogFromContext(ctx, audit.ActionUpdate, TargetType, id.String(), map[string]any{
			"fields":  []string{"status"},
			"summary": statusSummary(current.Status, to),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, result, statusEvent(to), true)
	return result, nil
}

// CheckConflicts re-validates a stored appointment against everything but itself.
func (s *Service) CheckConflicts(ctx context.Context, id uuid.UUID) (ConflictResult, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detector.Check(ctx, a.Candidate(), &id)
}

// PreviewConflicts checks a booking that has not been made yet. Nothing is written.
func (s *Service) PreviewConflicts(ctx context.Context, in CreateInput) (ConflictResult, error) {
	if err := validateWindow(in.StartTime, in.EndTime, s.now(), false); err != nil {
		return nil, err
	}
	return s.detector.Check(ctx, in.candidate(), nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.audit.LogFromContext(ctx, audit.ActionView, TargetType, id.String(), map[string]any{
		"summary": "record retrieved",
	}); err != nil {
		return nil, fmt.Errorf("audit view: %w", err)
	}
	return a, nil
}

// List returns one page of appointments and the total number matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	if err := s.audit.LogFromContext(ctx, audit.ActionView, TargetType, audit.ListObjectID, map[string]any{
		"summary": "list retrieved",
		"count":   len(items),
		"filters": f.Names(),
	}); err != nil {
		return nil, 0, fmt.Errorf("audit list: %w", err)
	}
	return items, total, nil
}

// Upcoming lists scheduled appointments that have not started yet.
func (s *Service) Upcoming(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	now := s.now()
	f.Status = StatusScheduled
	f.StartsAfter = &now
	return s.List(ctx, f)
}

func (s *Service) ByProvider(ctx context.Context, providerID uuid.UUID, f ListFilter) ([]Appointment, int, error) {
	f.ProviderID = &providerID
	return s.List(ctx, f)
}

func (s *Service) ByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Appointment, int, error) {
	f.PatientID = &patientID
	return s.List(ctx, f)
}

// SendReminders notifies both parties of scheduled appointments starting within
// lead. The guard keeps replicas from sending the same reminder twice.
func (s *Service) SendReminders(ctx context.Context, guard ReminderGuard, lead time.Duration) (int, error) {
	now := s.now()
	due, err := s.repo.FindDueReminders(ctx, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		a := &due[i]

		ok, err := guard.Acquire(ctx, a.ID)
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder guard failed")
			continue
		}
		if !ok {
			continue
		}

		delivered, err := s.notify(ctx, a, notification.EventReminder, true)
		if err != nil || delivered == 0 {
			// nothing went out; let the next tick retry
			if relErr := guard.Release(ctx, a.ID); relErr != nil {
				s.log.Error().Err(relErr).Str("appointment_id", a.ID.String()).Msg("release reminder guard")
			}
			continue
		}
		sent++
	}

	return sent, nil
}

func (s *Service) ensureNoConflicts(ctx context.Context, c Candidate, excludeID *uuid.UUID) error {
	if err := s.repo.LockParticipants(ctx, c); err != nil {
		return fmt.Errorf("lock participants: %w", err)
	}

	result, err := s.detector.Check(ctx, c, excludeID)
	if err != nil {
		return fmt.Errorf("check conflicts: %w", err)
	}
	if result.HasConflicts() {
		return &ConflictError{Result: result}
	}
	return nil
}

// checkParticipants validates the participants that are non-nil.
func (s *Service) checkParticipants(ctx context.Context, providerID, patientID, facilityID *uuid.UUID) error {
	if providerID != nil {
		p, err := s.repo.GetProviderByID(ctx, *providerID)
		if errors.Is(err, ErrProviderNotFound) {
			return invalid("provider", "Provider not found.")
		}
		if err != nil {
			return fmt.Errorf("load provider: %w", err)
		}
		if err := validateProvider(p); err != nil {
			return err
		}
	}

	if patientID != nil {
		p, err := s.repo.GetPatientByID(ctx, *patientID)
		if errors.Is(err, ErrPatientNotFound) {
			return invalid("patient", "Patient not found.")
		}
		if err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		if err := validatePatient(p); err != nil {
			return err
		}
	}

	if facilityID != nil {
		_, err := s.repo.GetFacilityByID(ctx, *facilityID)
		if errors.Is(err, ErrFacilityNotFound) {
			return invalid("facility", "Facility not found.")
		}
		if err != nil {
			return fmt.Errorf("load facility: %w", err)
		}
	}

	return nil
}

// notify runs after commit and returns how many deliveries went out. Delivery
// problems are logged and never returned; the error only reports that the
// participants could not be loaded.
func (s *Service) notify(ctx context.Context, a *Appointment, ev notification.Event, record bool) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	logger := s.log.With().
		Str("appointment_id", a.ID.String()).
		Str("event", string(ev)).
		Logger()

	provider, err := s.repo.GetProviderByID(ctx, a.ProviderID)
	if err != nil {
		logger.Error().Err(err).Msg("notify: load provider")
		return 0, err
	}
	patient, err := s.repo.GetPatientByID(ctx, a.PatientID)
	if err != nil {
		logger.Error().Err(err).Msg("notify: load patient")
		return 0, err
	}

	deliveries := s.notifier.Dispatch(ctx, notification.Notice{
		AppointmentID:   a.ID,
		Event:           ev,
		StartTime:       a.StartTime,
		Duration:        a.Duration(),
		AppointmentType: a.AppointmentType,
		Reason:          a.Reason,
		FacilityName:    a.FacilityName,
		Patient:         notification.Contact{Name: patient.FullName(), Email: patient.Email, Phone: patient.Phone},
		Provider:        notification.Contact{Name: provider.FullName(), Email: provider.Email, Phone: provider.Phone},
	})

	if len(deliveries) == 0 {
		logger.Warn().Msg("no notification delivered")
		return 0, nil
	}
	if !record {
		return len(deliveries), nil
	}
	if err := s.repo.AppendNotifications(ctx, a.ID, deliveries); err != nil {
		logger.Error().Err(err).Msg("record notification history")
		return len(deliveries), nil
	}
	a.NotificationsSent = append(a.NotificationsSent, deliveries...)
	return len(deliveries), nil
}
