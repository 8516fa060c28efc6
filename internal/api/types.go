package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/notification"
)

type CreateAppointmentRequest struct {
	Patient         string     `json:"patient"`
	Provider        string     `json:"provider"`
	Facility        string     `json:"facility"`
	AppointmentType string     `json:"appointment_type"`
	Reason          string     `json:"reason"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
}

// UpdateAppointmentRequest is used by PUT and PATCH. PUT requires the
// participant and time fields; PATCH takes any subset.
type UpdateAppointmentRequest struct {
	Patient         *string    `json:"patient"`
	Provider        *string    `json:"provider"`
	Facility        *string    `json:"facility"`
	AppointmentType *string    `json:"appointment_type"`
	Reason          *string    `json:"reason"`
	Status          *string    `json:"status"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
}

type AppointmentResponse struct {
	ID                uuid.UUID               `json:"id"`
	Patient           uuid.UUID               `json:"patient"`
	PatientName       string                  `json:"patient_name"`
	Provider          uuid.UUID               `json:"provider"`
	ProviderName      string                  `json:"provider_name"`
	Facility          uuid.UUID               `json:"facility"`
	FacilityName      string                  `json:"facility_name"`
	AppointmentType   string                  `json:"appointment_type"`
	Reason            string                  `json:"reason"`
	Status            string                  `json:"status"`
	StartTime         time.Time               `json:"start_time"`
	EndTime           time.Time               `json:"end_time"`
	DurationMinutes   int                     `json:"duration_minutes"`
	IsUpcoming        bool                    `json:"is_upcoming"`
	NotificationsSent []notification.Delivery `json:"notifications_sent"`
	CreatedBy         *uuid.UUID              `json:"created_by"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment, now time.Time) AppointmentResponse {
	sent := a.NotificationsSent
	if sent == nil {
		sent = []notification.Delivery{}
	}
	return AppointmentResponse{
		ID:                a.ID,
		Patient:           a.PatientID,
		PatientName:       a.PatientName,
		Provider:          a.ProviderID,
		ProviderName:      a.ProviderName,
		Facility:          a.FacilityID,
		FacilityName:      a.FacilityName,
		AppointmentType:   a.AppointmentType,
		Reason:            a.Reason,
		Status:            string(a.Status),
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		DurationMinutes:   int(a.Duration().Minutes()),
		IsUpcoming:        a.IsUpcoming(now),
		NotificationsSent: sent,
		CreatedBy:         a.CreatedBy,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// ListResponse is one page of results. Count is the number of matches across
// all pages.
type ListResponse[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
}

type ConflictSummaryResponse struct {
	ID          uuid.UUID `json:"id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Counterpart string    `json:"counterpart"`
}

type ConflictCheckResponse struct {
	HasConflicts bool                                 `json:"has_conflicts"`
	Conflicts    map[string][]ConflictSummaryResponse `json:"conflicts"`
}

func toConflictMap(result appointment.ConflictResult) map[string][]ConflictSummaryResponse {
	out := make(map[string][]ConflictSummaryResponse, len(result))
	for _, dim := range result.Dimensions() {
		for _, s := range result[dim] {
			out[string(dim)] = append(out[string(dim)], ConflictSummaryResponse{
				ID:          s.ID,
				StartTime:   s.StartTime,
				EndTime:     s.EndTime,
				Counterpart: s.Counterpart,
			})
		}
	}
	return out
}

type AuditEntryResponse struct {
	ID        uuid.UUID     `json:"id"`
	User      *uuid.UUID    `json:"user"`
	Action    string        `json:"action"`
	ModelName string        `json:"model_name"`
	ObjectID  string        `json:"object_id"`
	Changes   audit.Changes `json:"changes"`
	Timestamp time.Time     `json:"timestamp"`
	IPAddress *string       `json:"ip_address"`
	UserAgent string        `json:"user_agent"`
}

func toAuditEntryResponse(e *audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		User:      e.UserID,
		Action:    string(e.Action),
		ModelName: e.ModelName,
		ObjectID:  e.ObjectID,
		Changes:   e.Changes,
		Timestamp: e.Timestamp,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
	}
}

type ErrorResponse struct {
	Code      string                               `json:"code"`
	Message   string                               `json:"message"`
	Errors    map[string][]string                  `json:"errors,omitempty"`
	Conflicts map[string][]ConflictSummaryResponse `json:"conflicts,omitempty"`
}
