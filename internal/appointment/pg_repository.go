package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/notification"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

// Helpers

const appointmentCols = `
	a.id, a.patient_id, a.provider_id, a.facility_id, a.appointment_type, a.reason,
	a.status, a.start_time, a.end_time, a.notifications_sent, a.created_by,
	a.created_at, a.updated_at,
	trim(p.first_name || ' ' || p.last_name),
	trim(u.first_name || ' ' || u.last_name),
	f.name`

const appointmentFrom = `
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN users u ON u.id = a.provider_id
	JOIN health_facilities f ON f.id = a.facility_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notifications []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.FacilityID,
		&a.AppointmentType,
		&a.Reason,
		&a.Status,
		&a.StartTime,
		&a.EndTime,
		&notifications,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.PatientName,
		&a.ProviderName,
		&a.FacilityName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(notifications) > 0 {
		if err := json.Unmarshal(notifications, &a.NotificationsSent); err != nil {
			return nil, fmt.Errorf("decode notifications_sent: %w", err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// lockKeys is sorted so every transaction acquires its locks in the same order.
func lockKeys(c Candidate) []string {
	keys := []string{
		"provider:" + c.ProviderID.String(),
		"patient:" + c.PatientID.String(),
		"facility:" + c.FacilityID.String(),
	}
	sort.Strings(keys)
	return keys
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	var email, phone *string

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone_number, role, user_type, is_active
		FROM users
		WHERE id = $1
	`, id).Scan(&p.ID, &p.FirstName, &p.LastName, &email, &phone, &p.Role, &p.UserType, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Email = deref(email)
	p.Phone = deref(phone)
	return &p, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var email, phone *string

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, first_name, last_name, email, phone_number, is_active
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.PatientNumber, &p.FirstName, &p.LastName, &email, &phone, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = deref(email)
	p.Phone = deref(phone)
	return &p, nil
}

func (r *PgRepository) GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, facility_type, phone_number
		FROM health_facilities
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Name, &f.FacilityType, &f.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PgRepository) LockParticipants(ctx context.Context, c Candidate) error {
	if db.UnitOfWorkFromContext(ctx) == nil {
		return errors.New("lock participants: no active transaction")
	}
	q := r.conn(ctx)
	for _, key := range lockKeys(c) {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

func (r *PgRepository) FindOverlapping(ctx context.Context, c Candidate, excludeID *uuid.UUID) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+appointmentFrom+`
		WHERE a.status = ANY($1::text[])
		  AND a.start_time < $3
		  AND a.end_time > $2
		  AND (a.provider_id = $4 OR a.patient_id = $5 OR a.facility_id = $6)
		  AND ($7::uuid IS NULL OR a.id <> $7)
		ORDER BY a.start_time, a.id
	`, activeStatusStrings(), c.StartTime, c.EndTime, c.ProviderID, c.PatientID, c.FacilityID, excludeID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+appointmentFrom+` WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+appointmentFrom+` WHERE a.id = $1 FOR UPDATE OF a`, id)
	return scanAppointment(row)
}

// ListAppointments returns one page plus the number of rows matching f
// across all pages.
func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ProviderID != nil {
		add("a.provider_id = $%d", *f.ProviderID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.FacilityID != nil {
		add("a.facility_id = $%d", *f.FacilityID)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if f.AppointmentType != "" {
		add("a.appointment_type = $%d", f.AppointmentType)
	}
	if f.StartsAfter != nil {
		add("a.start_time > $%d", *f.StartsAfter)
	}

	var filter string
	if len(where) > 0 {
		filter = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM appointments a`+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + appointmentCols + appointmentFrom + filter +
		fmt.Sprintf(` ORDER BY a.start_time, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, provider_id, facility_id, appointment_type, reason,
			status, start_time, end_time, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.ProviderID, a.FacilityID, a.AppointmentType, a.Reason,
		a.Status, a.StartTime, a.EndTime, a.CreatedBy).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, expected Status) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    provider_id = $3,
		    facility_id = $4,
		    appointment_type = $5,
		    reason = $6,
		    status = $7,
		    start_time = $8,
		    end_time = $9,
		    updated_at = now()
		WHERE id = $1
		  AND status = $10
		RETURNING updated_at
	`, a.ID, a.PatientID, a.ProviderID, a.FacilityID, a.AppointmentType, a.Reason,
		a.Status, a.StartTime, a.EndTime, expected).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentChanged
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, id, to, from)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentChanged
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindDueReminders(ctx context.Context, after, until time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+appointmentFrom+`
		WHERE a.status = 'scheduled'
		  AND a.start_time > $1
		  AND a.start_time <= $2
		ORDER BY a.start_time, a.id
	`, after, until)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) AppendNotifications(ctx context.Context, id uuid.UUID, deliveries []notification.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	data, err := json.Marshal(deliveries)
	if err != nil {
		return fmt.Errorf("encode deliveries: %w", err)
	}

	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET notifications_sent = notifications_sent || $2::jsonb
		WHERE id = $1
	`, id, string(data))
	if err != nil {
		return fmt.Errorf("append notifications: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
