package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/notification"
)

type fixture struct {
	*harness
	provider *Provider
	patient  *Patient
	facility *Facility
}

func newFixture() fixture {
	h := newHarness()
	return fixture{
		harness:  h,
		provider: h.repo.addProvider("doctor", true),
		patient:  h.repo.addPatient(true),
		facility: h.repo.addFacility(),
	}
}

func (f fixture) input(start, end time.Time) CreateInput {
	return CreateInput{
		PatientID:  f.patient.ID,
		ProviderID: f.provider.ID,
		FacilityID: f.facility.ID,
		StartTime:  start,
		EndTime:    end,
	}
}

func TestCreate_ProviderConflictScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	existing, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	// different patient and facility so only the provider clashes
	other := f.input(f.at(14, 15), f.at(14, 45))
	other.PatientID = f.repo.addPatient(true).ID
	other.FacilityID = f.repo.addFacility().ID

	_, err = f.svc.Create(ctx, other)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	dims := conflict.Result.Dimensions()
	if len(dims) != 1 || dims[0] != DimensionProvider {
		t.Fatalf("expected only provider dimension, got %v", dims)
	}
	if got := conflict.Result[DimensionProvider]; len(got) != 1 || got[0].ID != existing.ID {
		t.Errorf("expected conflict with %s, got %+v", existing.ID, got)
	}
	if _, ok := conflict.Messages()["provider"]; !ok {
		t.Error("expected a provider message")
	}

	backToBack := other
	backToBack.StartTime = f.at(14, 30)
	backToBack.EndTime = f.at(15, 0)
	if _, err := f.svc.Create(ctx, backToBack); err != nil {
		t.Fatalf("back-to-back booking should succeed: %v", err)
	}

	if len(f.repo.appointments) != 2 {
		t.Errorf("expected 2 stored appointments, got %d", len(f.repo.appointments))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		in    func() CreateInput
		field string
	}{
		{
			name:  "shorter than five minutes",
			in:    func() CreateInput { return f.input(f.at(10, 0), f.at(10, 4)) },
			field: "",
		},
		{
			name:  "end before start",
			in:    func() CreateInput { return f.input(f.at(10, 30), f.at(10, 0)) },
			field: "end_time",
		},
		{
			name:  "start in the past",
			in:    func() CreateInput { return f.input(f.now.Add(-time.Hour), f.now.Add(-30*time.Minute)) },
			field: "start_time",
		},
		{
			name: "ineligible provider",
			in: func() CreateInput {
				in := f.input(f.at(10, 0), f.at(10, 30))
				in.ProviderID = f.repo.addProvider("pharmacist", true).ID
				return in
			},
			field: "provider",
		},
		{
			name: "inactive provider",
			in: func() CreateInput {
				in := f.input(f.at(10, 0), f.at(10, 30))
				in.ProviderID = f.repo.addProvider("nurse", false).ID
				return in
			},
			field: "provider",
		},
		{
			name: "inactive patient",
			in: func() CreateInput {
				in := f.input(f.at(10, 0), f.at(10, 30))
				in.PatientID = f.repo.addPatient(false).ID
				return in
			},
			field: "patient",
		},
		{
			name: "unknown facility",
			in: func() CreateInput {
				in := f.input(f.at(10, 0), f.at(10, 30))
				in.FacilityID = uuid.New()
				return in
			},
			field: "facility",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in())
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}

	if len(f.repo.appointments) != 0 {
		t.Errorf("nothing should be stored, got %d", len(f.repo.appointments))
	}
	if len(f.audit.entries) != 0 {
		t.Errorf("nothing should be audited, got %d", len(f.audit.entries))
	}
}

func TestCreate_AuditsAndNotifies(t *testing.T) {
	f := newFixture()
	actor := uuid.New()
	ctx := access.WithPrincipal(context.Background(), access.User{UserID: actor, UserRole: access.RoleProvider})

	in := f.input(f.at(11, 0), f.at(11, 30))
	in.Reason = "follow-up"
	created, err := f.svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.Status != StatusScheduled || created.ProviderName != "Grace doctor" {
		t.Errorf("unexpected appointment %+v", created)
	}
	if created.CreatedBy == nil || *created.CreatedBy != actor {
		t.Errorf("expected created_by %s, got %v", actor, created.CreatedBy)
	}
	if len(f.repo.locked) != 1 {
		t.Errorf("expected participants to be locked once, got %d", len(f.repo.locked))
	}

	if len(f.audit.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Action != audit.ActionCreate || e.ModelName != TargetType || e.ObjectID != created.ID.String() {
		t.Errorf("unexpected audit entry %+v", e)
	}
	if e.UserID == nil || *e.UserID != actor {
		t.Errorf("expected audit actor %s", actor)
	}

	if ev := f.notifier.events(); len(ev) != 1 || ev[0] != notification.EventCreated {
		t.Errorf("expected one created notification, got %v", ev)
	}
	if n := f.notifier.notices[0]; n.Patient.Phone == "" || n.Provider.Email == "" || n.Duration != 30*time.Minute {
		t.Errorf("notice missing contact details: %+v", n)
	}
	if stored := f.repo.appointments[created.ID]; len(stored.NotificationsSent) != 1 {
		t.Errorf("expected delivery history to be recorded, got %+v", stored.NotificationsSent)
	}
}

func TestTransitions_TerminalStatesFail(t *testing.T) {
	ops := []struct {
		name string
		run  func(s *Service, ctx context.Context, id uuid.UUID) (*Appointment, error)
		want Status
	}{
		{"cancel", (*Service).Cancel, StatusCancelled},
		{"complete", (*Service).Complete, StatusCompleted},
		{"no-show", (*Service).MarkNoShow, StatusNoShow},
	}

	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			a := f.repo.addAppointment(Appointment{
				ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
				StartTime: f.at(9, 0), EndTime: f.at(9, 30),
			})

			got, err := op.run(f.svc, ctx, a.ID)
			if err != nil {
				t.Fatalf("first %s: %v", op.name, err)
			}
			if got.Status != op.want {
				t.Errorf("expected %s, got %s", op.want, got.Status)
			}

			_, err = op.run(f.svc, ctx, a.ID)
			if !errors.Is(err, ErrInvalidStatusTransition) {
				t.Fatalf("second %s should fail, got %v", op.name, err)
			}

			if len(f.audit.entries) != 1 {
				t.Errorf("expected exactly one audit entry, got %d", len(f.audit.entries))
			}
			if len(f.notifier.notices) != 1 {
				t.Errorf("expected exactly one notification, got %d", len(f.notifier.notices))
			}
		})
	}
}

func TestCancel_NotifiesCancelled(t *testing.T) {
	f := newFixture()
	a := f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.at(9, 0), EndTime: f.at(9, 30),
	})

	if _, err := f.svc.Cancel(context.Background(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ev := f.notifier.events(); len(ev) != 1 || ev[0] != notification.EventCancelled {
		t.Errorf("expected cancelled notification, got %v", ev)
	}
	if fields := f.audit.entries[0].Changes.Fields; len(fields) != 1 || fields[0] != "status" {
		t.Errorf("expected status field in audit, got %v", fields)
	}
}

func TestCancel_FreesTheSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30))); err != nil {
		t.Fatalf("cancelled appointments must not block: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.input(f.at(9, 0), f.at(9, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blocker, err := f.svc.Create(ctx, f.input(f.at(10, 0), f.at(10, 30)))
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}

	t.Run("shift within own window", func(t *testing.T) {
		end := f.at(9, 45)
		got, err := f.svc.Update(ctx, a.ID, UpdateInput{EndTime: &end})
		if err != nil {
			t.Fatalf("extending into own slot should pass: %v", err)
		}
		if !got.EndTime.Equal(end) {
			t.Errorf("end time not updated: %v", got.EndTime)
		}
	})

	t.Run("move onto another booking", func(t *testing.T) {
		start, end := f.at(10, 15), f.at(10, 45)
		_, err := f.svc.Update(ctx, a.ID, UpdateInput{StartTime: &start, EndTime: &end})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if got := conflict.Result[DimensionProvider]; len(got) != 1 || got[0].ID != blocker.ID {
			t.Errorf("expected conflict with blocker, got %+v", got)
		}
	})

	t.Run("reason only skips the conflict check", func(t *testing.T) {
		locks := len(f.repo.locked)
		reason := "bring lab results"
		got, err := f.svc.Update(ctx, a.ID, UpdateInput{Reason: &reason})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Reason != reason {
			t.Errorf("reason not updated")
		}
		if len(f.repo.locked) != locks {
			t.Error("a reason edit should not take participant locks")
		}
	})

	t.Run("moving into the past fails", func(t *testing.T) {
		start, end := f.now.Add(-2*time.Hour), f.now.Add(-time.Hour)
		_, err := f.svc.Update(ctx, a.ID, UpdateInput{StartTime: &start, EndTime: &end})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "start_time" {
			t.Fatalf("expected start_time validation error, got %v", err)
		}
	})

	t.Run("status out of terminal state fails", func(t *testing.T) {
		if _, err := f.svc.Cancel(ctx, blocker.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		scheduled := StatusScheduled
		_, err := f.svc.Update(ctx, blocker.ID, UpdateInput{Status: &scheduled})
		if !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("audits and notifies cancelled", func(t *testing.T) {
		f := newFixture()
		a := f.repo.addAppointment(Appointment{
			ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
			StartTime: f.at(9, 0), EndTime: f.at(9, 30),
		})

		if err := f.svc.Delete(context.Background(), a.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok := f.repo.appointments[a.ID]; ok {
			t.Error("appointment still stored")
		}
		if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionDelete {
			t.Errorf("expected one delete entry, got %+v", f.audit.entries)
		}
		if s := f.audit.entries[0].Changes.Summary; s == nil || *s != "record deleted" {
			t.Errorf("unexpected summary %v", s)
		}
		if ev := f.notifier.events(); len(ev) != 1 || ev[0] != notification.EventCancelled {
			t.Errorf("expected cancelled notification, got %v", ev)
		}
	})

	t.Run("rollback writes no audit entry", func(t *testing.T) {
		f := newFixture()
		f.repo.deleteErr = errors.New("foreign key violation")
		a := f.repo.addAppointment(Appointment{
			ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
			StartTime: f.at(9, 0), EndTime: f.at(9, 30),
		})

		if err := f.svc.Delete(context.Background(), a.ID); err == nil {
			t.Fatal("expected delete to fail")
		}
		if len(f.audit.entries) != 0 {
			t.Errorf("rolled back delete must leave no audit entry, got %d", len(f.audit.entries))
		}
		if len(f.notifier.notices) != 0 {
			t.Error("rolled back delete must not notify")
		}
	})

	t.Run("missing appointment", func(t *testing.T) {
		f := newFixture()
		if err := f.svc.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
			t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})
}

func TestCheckConflicts_SelfExclusion(t *testing.T) {
	f := newFixture()
	a, err := f.svc.Create(context.Background(), f.input(f.at(9, 0), f.at(9, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.svc.CheckConflicts(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasConflicts() {
		t.Errorf("expected no conflicts, got %+v", result)
	}
}

func TestPreviewConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, f.input(f.at(9, 0), f.at(9, 30))); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := len(f.audit.entries)

	result, err := f.svc.PreviewConflicts(ctx, f.input(f.at(9, 10), f.at(9, 20)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Dimensions()) != 3 {
		t.Errorf("expected all dimensions, got %v", result.Dimensions())
	}
	if len(f.repo.appointments) != 1 || len(f.audit.entries) != before {
		t.Error("preview must not write anything")
	}
}

func TestList_AuditsView(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, hh := range []int{9, 10, 11} {
		if _, err := f.svc.Create(ctx, f.input(f.at(hh, 0), f.at(hh, 30))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	f.audit.entries = nil

	items, total, err := f.svc.ByProvider(ctx, f.provider.ID, ListFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 || total != 3 {
		t.Fatalf("expected 3 items of 3, got %d of %d", len(items), total)
	}

	e := f.audit.entries[0]
	if e.Action != audit.ActionView || e.ObjectID != audit.ListObjectID {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Changes.Count == nil || *e.Changes.Count != 3 {
		t.Errorf("expected count 3, got %v", e.Changes.Count)
	}
	if len(e.Changes.Filters) != 1 || e.Changes.Filters[0] != "provider" {
		t.Errorf("expected provider filter, got %v", e.Changes.Filters)
	}
}

func TestList_TotalSpansPages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, hh := range []int{9, 10, 11, 12, 13} {
		if _, err := f.svc.Create(ctx, f.input(f.at(hh, 0), f.at(hh, 30))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	f.audit.entries = nil

	items, total, err := f.svc.List(ctx, ListFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(items) != 2 || items[0].StartTime.Hour() != 11 {
		t.Errorf("expected the 11:00 and 12:00 page, got %+v", items)
	}
	if c := f.audit.entries[0].Changes.Count; c == nil || *c != 2 {
		t.Errorf("audit count should be the returned rows, got %v", c)
	}

	items, total, err = f.svc.List(ctx, ListFilter{Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 || total != 5 {
		t.Errorf("past the end: expected 0 items of 5, got %d of %d", len(items), total)
	}
}

func TestUpcoming(t *testing.T) {
	f := newFixture()
	f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.now.Add(-time.Hour), EndTime: f.now.Add(-30 * time.Minute),
	})
	future := f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.at(9, 0), EndTime: f.at(9, 30),
	})
	f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.at(10, 0), EndTime: f.at(10, 30), Status: StatusCancelled,
	})

	items, _, err := f.svc.Upcoming(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != future.ID {
		t.Errorf("expected only the future scheduled appointment, got %+v", items)
	}
}

func TestSendReminders_OncePerAppointment(t *testing.T) {
	f := newFixture()
	soon := f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.now.Add(2 * time.Hour), EndTime: f.now.Add(150 * time.Minute),
	})
	// beyond the lead window
	f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.now.Add(48 * time.Hour), EndTime: f.now.Add(49 * time.Hour),
	})

	guard := &memGuard{held: map[uuid.UUID]bool{}}
	ctx := context.Background()

	sent, err := f.svc.SendReminders(ctx, guard, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	if f.notifier.notices[0].AppointmentID != soon.ID || f.notifier.notices[0].Event != notification.EventReminder {
		t.Errorf("unexpected notice %+v", f.notifier.notices[0])
	}

	sent, err = f.svc.SendReminders(ctx, guard, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("second run should not resend, got %d", sent)
	}
}

func TestUpdate_ConcurrentCancelWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	entries, notices := len(f.audit.entries), len(f.notifier.notices)

	f.repo.afterLockedRead = func(id uuid.UUID) {
		f.repo.afterLockedRead = nil
		f.repo.setStatus(id, StatusCancelled)
	}

	start, end := f.at(15, 0), f.at(15, 30)
	_, err = f.svc.Update(ctx, a.ID, UpdateInput{StartTime: &start, EndTime: &end})

	var trans *TransitionError
	if !errors.As(err, &trans) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trans.From != StatusCancelled {
		t.Errorf("expected the stored status in the error, got %s", trans.From)
	}

	stored := f.repo.appointments[a.ID]
	if stored.Status != StatusCancelled {
		t.Errorf("cancelled appointment was overwritten back to %s", stored.Status)
	}
	if !stored.StartTime.Equal(f.at(14, 0)) {
		t.Errorf("window should be unchanged, got %v", stored.StartTime)
	}
	if len(f.audit.entries) != entries || len(f.notifier.notices) != notices {
		t.Error("a lost update must not audit or notify")
	}
}

func TestTransition_ConcurrentChangeReportsStoredStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.repo.afterLockedRead = func(id uuid.UUID) {
		f.repo.afterLockedRead = nil
		f.repo.setStatus(id, StatusCompleted)
	}

	_, err = f.svc.Cancel(ctx, a.ID)
	var trans *TransitionError
	if !errors.As(err, &trans) || trans.From != StatusCompleted {
		t.Fatalf("expected transition error from completed, got %v", err)
	}
	if got := f.repo.appointments[a.ID].Status; got != StatusCompleted {
		t.Errorf("expected status to stay completed, got %s", got)
	}
}

func TestUpdate_StatusChangeUsesTransitionEvent(t *testing.T) {
	tests := []struct {
		to    Status
		event notification.Event
	}{
		{StatusCancelled, notification.EventCancelled},
		{StatusCompleted, notification.EventUpdated},
		{StatusNoShow, notification.EventUpdated},
	}

	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()

			a, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			to := tt.to
			got, err := f.svc.Update(ctx, a.ID, UpdateInput{Status: &to})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got.Status != tt.to {
				t.Errorf("expected %s, got %s", tt.to, got.Status)
			}

			ev := f.notifier.events()
			if last := ev[len(ev)-1]; last != tt.event {
				t.Errorf("expected %s notification, got %s", tt.event, last)
			}

			entry := f.audit.entries[len(f.audit.entries)-1]
			want := "status changed from scheduled to " + string(tt.to)
			if entry.Changes.Summary == nil || *entry.Changes.Summary != want {
				t.Errorf("expected summary %q, got %v", want, entry.Changes.Summary)
			}
		})
	}
}

func TestUpdate_NoStatusChangeHasNoSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.input(f.at(14, 0), f.at(14, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reason := "follow-up"
	if _, err := f.svc.Update(ctx, a.ID, UpdateInput{Reason: &reason}); err != nil {
		t.Fatalf("update: %v", err)
	}

	entry := f.audit.entries[len(f.audit.entries)-1]
	if entry.Changes.Summary != nil {
		t.Errorf("expected no summary, got %q", *entry.Changes.Summary)
	}
	if ev := f.notifier.events(); ev[len(ev)-1] != notification.EventUpdated {
		t.Errorf("expected updated notification, got %v", ev)
	}
}

func TestSendReminders_RetriesWhenNothingDelivered(t *testing.T) {
	f := newFixture()
	a := f.repo.addAppointment(Appointment{
		ProviderID: f.provider.ID, PatientID: f.patient.ID, FacilityID: f.facility.ID,
		StartTime: f.now.Add(2 * time.Hour), EndTime: f.now.Add(150 * time.Minute),
	})

	guard := &memGuard{held: map[uuid.UUID]bool{}}
	ctx := context.Background()
	f.notifier.undelivered = true

	sent, err := f.svc.SendReminders(ctx, guard, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("nothing was delivered, expected 0 sent, got %d", sent)
	}
	if guard.held[a.ID] {
		t.Fatal("guard must be released when no delivery went out")
	}

	f.notifier.undelivered = false
	sent, err = f.svc.SendReminders(ctx, guard, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected the reminder to go out on the next run, got %d", sent)
	}
	if len(f.repo.appointments[a.ID].NotificationsSent) != 1 {
		t.Errorf("expected one recorded delivery, got %+v", f.repo.appointments[a.ID].NotificationsSent)
	}
}
