package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/notification"
)

type memRepo struct {
	mu           sync.Mutex
	providers    map[uuid.UUID]*Provider
	patients     map[uuid.UUID]*Patient
	facilities   map[uuid.UUID]*Facility
	appointments map[uuid.UUID]*Appointment

	locked    [][]string
	deleteErr error

	// afterLockedRead runs once a row-locking read returns, standing in for a
	// writer that committed in between.
	afterLockedRead func(id uuid.UUID)
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers:    map[uuid.UUID]*Provider{},
		patients:     map[uuid.UUID]*Patient{},
		facilities:   map[uuid.UUID]*Facility{},
		appointments: map[uuid.UUID]*Appointment{},
	}
}

func (m *memRepo) addProvider(userType string, active bool) *Provider {
	p := &Provider{ID: uuid.New(), FirstName: "Grace", LastName: userType, Email: userType + "@clinic.test", UserType: userType, IsActive: active}
	m.providers[p.ID] = p
	return p
}

func (m *memRepo) addPatient(active bool) *Patient {
	p := &Patient{ID: uuid.New(), FirstName: "Juma", LastName: "Mwangi", Phone: "+254711000000", IsActive: active}
	m.patients[p.ID] = p
	return p
}

func (m *memRepo) addFacility() *Facility {
	f := &Facility{ID: uuid.New(), Name: "Mathare Health Centre"}
	m.facilities[f.ID] = f
	return f
}

func (m *memRepo) addAppointment(a Appointment) *Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	m.appointments[a.ID] = &a
	return &a
}

func (m *memRepo) hydrate(a Appointment) Appointment {
	if p, ok := m.patients[a.PatientID]; ok {
		a.PatientName = p.FullName()
	}
	if p, ok := m.providers[a.ProviderID]; ok {
		a.ProviderName = p.FullName()
	}
	if f, ok := m.facilities[a.FacilityID]; ok {
		a.FacilityName = f.Name
	}
	return a
}

func (m *memRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrProviderNotFound
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrPatientNotFound
}

func (m *memRepo) GetFacilityByID(_ context.Context, id uuid.UUID) (*Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.facilities[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, ErrFacilityNotFound
}

func (m *memRepo) LockParticipants(ctx context.Context, c Candidate) error {
	if db.UnitOfWorkFromContext(ctx) == nil {
		return errors.New("no transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, lockKeys(c))
	return nil
}

// FindOverlapping returns every stored appointment; the detector does the filtering.
func (m *memRepo) FindOverlapping(_ context.Context, _ Candidate, _ *uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		out = append(out, m.hydrate(*a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	h := m.hydrate(*a)
	return &h, nil
}

func (m *memRepo) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := m.GetAppointmentByID(ctx, id)
	if err == nil && m.afterLockedRead != nil {
		m.afterLockedRead(id)
	}
	return a, err
}

// setStatus changes a stored status directly, as another transaction would.
func (m *memRepo) setStatus(id uuid.UUID, to Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[id].Status = to
}

func (m *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.StartsAfter != nil && !a.StartTime.After(*f.StartsAfter) {
			continue
		}
		out = append(out, m.hydrate(*a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })

	total := len(out)
	if f.Offset >= total {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *memRepo) UpdateAppointment(_ context.Context, a *Appointment, expected Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appointments[a.ID]
	if !ok || stored.Status != expected {
		return ErrAppointmentChanged
	}
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return ErrAppointmentChanged
	}
	a.Status = to
	return nil
}

func (m *memRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.appointments, id)
	return nil
}

func (m *memRepo) FindDueReminders(_ context.Context, after, until time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusScheduled && a.StartTime.After(after) && !a.StartTime.After(until) {
			out = append(out, m.hydrate(*a))
		}
	}
	return out, nil
}

func (m *memRepo) AppendNotifications(_ context.Context, id uuid.UUID, deliveries []notification.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.appointments[id]; ok {
		a.NotificationsSent = append(a.NotificationsSent, deliveries...)
	}
	return nil
}

type auditStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *auditStore) Insert(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *auditStore) Get(context.Context, uuid.UUID) (*audit.Entry, error) {
	return nil, audit.ErrEntryNotFound
}

func (s *auditStore) List(context.Context, audit.Filter) ([]audit.Entry, int, error) {
	return s.entries, len(s.entries), nil
}

type recordingNotifier struct {
	notices []notification.Notice
	// undelivered makes every channel fail.
	undelivered bool
}

func (n *recordingNotifier) Dispatch(_ context.Context, notice notification.Notice) []notification.Delivery {
	n.notices = append(n.notices, notice)
	if n.undelivered {
		return nil
	}
	return []notification.Delivery{{
		Type:      notification.MethodEmail,
		Recipient: notification.RecipientPatient,
		Method:    notification.MethodEmail,
		SentAt:    notice.StartTime,
	}}
}

func (n *recordingNotifier) events() []notification.Event {
	out := make([]notification.Event, len(n.notices))
	for i, notice := range n.notices {
		out[i] = notice.Event
	}
	return out
}

type nopTx struct{}

func (nopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (nopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (nopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopTx) Commit(context.Context) error   { return nil }
func (nopTx) Rollback(context.Context) error { return nil }

type memGuard struct {
	held map[uuid.UUID]bool
}

func (g *memGuard) Acquire(_ context.Context, id uuid.UUID) (bool, error) {
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, id uuid.UUID) error {
	delete(g.held, id)
	return nil
}

type harness struct {
	repo     *memRepo
	audit    *auditStore
	notifier *recordingNotifier
	svc      *Service
	now      time.Time
}

func newHarness() *harness {
	repo := newMemRepo()
	store := &auditStore{}
	notifier := &recordingNotifier{}
	manager := db.NewManagerFunc(func(context.Context) (db.Tx, error) { return nopTx{}, nil })

	svc := NewService(repo, manager, audit.NewRecorder(store, zerolog.Nop()), notifier, zerolog.Nop())
	now := time.Date(2030, time.June, 10, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &harness{repo: repo, audit: store, notifier: notifier, svc: svc, now: now}
}

// at returns the next day at hh:mm relative to the harness clock.
func (h *harness) at(hh, mm int) time.Time {
	d := h.now.Add(24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, time.UTC)
}
