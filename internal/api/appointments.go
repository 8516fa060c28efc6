package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type AppointmentService interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, in appointment.UpdateInput) (*appointment.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CheckConflicts(ctx context.Context, id uuid.UUID) (appointment.ConflictResult, error)
	PreviewConflicts(ctx context.Context, in appointment.CreateInput) (appointment.ConflictResult, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	Upcoming(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	ByProvider(ctx context.Context, providerID uuid.UUID, f appointment.ListFilter) ([]appointment.Appointment, int, error)
	ByPatient(ctx context.Context, patientID uuid.UUID, f appointment.ListFilter) ([]appointment.Appointment, int, error)
}

func appointmentHandlers(svc AppointmentService) map[Action]actionHandler {
	transition := func(op func(context.Context, uuid.UUID) (*appointment.Appointment, error)) actionHandler {
		return func(w http.ResponseWriter, r *http.Request) error {
			id, err := pathUUID(r, "id")
			if err != nil {
				return err
			}
			appt, err := op(r.Context(), id)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, toAppointmentResponse(appt, time.Now()))
			return nil
		}
	}

	list := func(run func(r *http.Request, f appointment.ListFilter) ([]appointment.Appointment, int, error)) actionHandler {
		return func(w http.ResponseWriter, r *http.Request) error {
			f, err := parseListFilter(r)
			if err != nil {
				return err
			}
			items, total, err := run(r, f)
			if err != nil {
				return err
			}
			writeAppointmentList(w, items, total, f)
			return nil
		}
	}

	return map[Action]actionHandler{
		ActionList: list(func(r *http.Request, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
			return svc.List(r.Context(), f)
		}),
		ActionUpcoming: list(func(r *http.Request, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
			return svc.Upcoming(r.Context(), f)
		}),
		ActionByProvider: list(func(r *http.Request, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
			id, err := pathUUID(r, "providerID")
			if err != nil {
				return nil, 0, err
			}
			return svc.ByProvider(r.Context(), id, f)
		}),
		ActionByPatient: list(func(r *http.Request, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
			id, err := pathUUID(r, "patientID")
			if err != nil {
				return nil, 0, err
			}
			return svc.ByPatient(r.Context(), id, f)
		}),

		ActionCreate: func(w http.ResponseWriter, r *http.Request) error {
			in, err := decodeCreate(r)
			if err != nil {
				return err
			}
			appt, err := svc.Create(r.Context(), in)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, time.Now()))
			return nil
		},

		ActionRetrieve: func(w http.ResponseWriter, r *http.Request) error {
			id, err := pathUUID(r, "id")
			if err != nil {
				return err
			}
			appt, err := svc.Get(r.Context(), id)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, toAppointmentResponse(appt, time.Now()))
			return nil
		},

		ActionUpdate:        updateHandler(svc, true),
		ActionPartialUpdate: updateHandler(svc, false),

		ActionDestroy: func(w http.ResponseWriter, r *http.Request) error {
			id, err := pathUUID(r, "id")
			if err != nil {
				return err
			}
			if err := svc.Delete(r.Context(), id); err != nil {
				return err
			}
			w.WriteHeader(http.StatusNoContent)
			return nil
		},

		ActionCancel:     transition(svc.Cancel),
		ActionComplete:   transition(svc.Complete),
		ActionMarkNoShow: transition(svc.MarkNoShow),

		ActionCheckConflicts: func(w http.ResponseWriter, r *http.Request) error {
			id, err := pathUUID(r, "id")
			if err != nil {
				return err
			}
			result, err := svc.CheckConflicts(r.Context(), id)
			if err != nil {
				return err
			}
			writeConflictCheck(w, result)
			return nil
		},

		ActionPreviewConflicts: func(w http.ResponseWriter, r *http.Request) error {
			in, err := decodeCreate(r)
			if err != nil {
				return err
			}
			result, err := svc.PreviewConflicts(r.Context(), in)
			if err != nil {
				return err
			}
			writeConflictCheck(w, result)
			return nil
		},
	}
}

func updateHandler(svc AppointmentService, full bool) actionHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, err := pathUUID(r, "id")
		if err != nil {
			return err
		}
		in, err := decodeUpdate(r, full)
		if err != nil {
			return err
		}
		appt, err := svc.Update(r.Context(), id, in)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, time.Now()))
		return nil
	}
}

func writeAppointmentList(w http.ResponseWriter, items []appointment.Appointment, total int, f appointment.ListFilter) {
	now := time.Now()
	results := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		results = append(results, toAppointmentResponse(&items[i], now))
	}
	writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
		Results: results,
		Count:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
}

func writeConflictCheck(w http.ResponseWriter, result appointment.ConflictResult) {
	writeJSON(w, http.StatusOK, ConflictCheckResponse{
		HasConflicts: result.HasConflicts(),
		Conflicts:    toConflictMap(result),
	})
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		e := &requestError{}
		e.add(param, "Must be a valid UUID.")
		return uuid.Nil, e
	}
	return id, nil
}

func decodeCreate(r *http.Request) (appointment.CreateInput, error) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		e := &requestError{}
		e.add(nonFieldErrors, "Could not parse JSON body.")
		return appointment.CreateInput{}, e
	}

	e := &requestError{}
	in := appointment.CreateInput{
		PatientID:       requiredUUID(e, "patient", req.Patient),
		ProviderID:      requiredUUID(e, "provider", req.Provider),
		FacilityID:      requiredUUID(e, "facility", req.Facility),
		AppointmentType: req.AppointmentType,
		Reason:          req.Reason,
	}
	if req.StartTime == nil {
		e.add("start_time", "This field is required.")
	} else {
		in.StartTime = *req.StartTime
	}
	if req.EndTime == nil {
		e.add("end_time", "This field is required.")
	} else {
		in.EndTime = *req.EndTime
	}

	return in, e.orNil()
}

func decodeUpdate(r *http.Request, full bool) (appointment.UpdateInput, error) {
	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		e := &requestError{}
		e.add(nonFieldErrors, "Could not parse JSON body.")
		return appointment.UpdateInput{}, e
	}

	e := &requestError{}
	if full {
		for field, missing := range map[string]bool{
			"patient":    req.Patient == nil,
			"provider":   req.Provider == nil,
			"facility":   req.Facility == nil,
			"start_time": req.StartTime == nil,
			"end_time":   req.EndTime == nil,
		} {
			if missing {
				e.add(field, "This field is required.")
			}
		}
	}

	in := appointment.UpdateInput{
		PatientID:       optionalUUID(e, "patient", req.Patient),
		ProviderID:      optionalUUID(e, "provider", req.Provider),
		FacilityID:      optionalUUID(e, "facility", req.Facility),
		AppointmentType: req.AppointmentType,
		Reason:          req.Reason,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	}
	if req.Status != nil {
		s := appointment.Status(*req.Status)
		if !s.Valid() {
			e.add("status", "Not a valid choice.")
		}
		in.Status = &s
	}

	return in, e.orNil()
}

func requiredUUID(e *requestError, field, raw string) uuid.UUID {
	if raw == "" {
		e.add(field, "This field is required.")
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		e.add(field, "Must be a valid UUID.")
		return uuid.Nil
	}
	return id
}

func optionalUUID(e *requestError, field string, raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id := requiredUUID(e, field, *raw)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func parseListFilter(r *http.Request) (appointment.ListFilter, error) {
	q := r.URL.Query()
	e := &requestError{}

	var f appointment.ListFilter
	for param, dst := range map[string]**uuid.UUID{
		"provider": &f.ProviderID,
		"patient":  &f.PatientID,
		"facility": &f.FacilityID,
	} {
		if raw := q.Get(param); raw != "" {
			*dst = optionalUUID(e, param, &raw)
		}
	}

	if raw := q.Get("status"); raw != "" {
		s := appointment.Status(raw)
		if !s.Valid() {
			e.add("status", "Not a valid choice.")
		}
		f.Status = s
	}
	f.AppointmentType = q.Get("appointment_type")

	f.Limit = intParam(e, q.Get("limit"), "limit", 20)
	f.Offset = intParam(e, q.Get("offset"), "offset", 0)
	if f.Limit == 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	return f, e.orNil()
}

func intParam(e *requestError, raw, field string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		e.add(field, "Must be a non-negative integer.")
		return def
	}
	return n
}
