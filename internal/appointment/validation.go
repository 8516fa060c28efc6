package appointment

import (
	"fmt"
	"strings"
	"time"
)

const MinDuration = 5 * time.Minute

// eligibleProviderTypes are the clinical user types that can hold appointments.
var eligibleProviderTypes = map[string]bool{
	"doctor":           true,
	"nurse":            true,
	"midwife":          true,
	"community_worker": true,
}

func IsEligibleProviderType(userType string) bool {
	return eligibleProviderTypes[userType]
}

// ValidationError is a user-correctable problem with the request. Field is empty
// for errors that concern the request as a whole.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError rejects a booking that overlaps existing active appointments.
type ConflictError struct {
	Result ConflictResult
}

func (e *ConflictError) Error() string {
	dims := e.Result.Dimensions()
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	return fmt.Sprintf("appointment conflicts on %s", strings.Join(names, ", "))
}

// Messages returns the per-dimension rejection text.
func (e *ConflictError) Messages() map[string]string {
	out := make(map[string]string, len(e.Result))
	for _, d := range e.Result.Dimensions() {
		switch d {
		case DimensionProvider:
			out[string(d)] = "Provider already has an appointment in this window."
		case DimensionPatient:
			out[string(d)] = "Patient already has an appointment in this window."
		case DimensionFacility:
			out[string(d)] = "Facility already has an appointment in this window."
		}
	}
	return out
}

// validateWindow checks the interval shape. requireFuture applies to new bookings
// and to edits that move the start.
func validateWindow(start, end, now time.Time, requireFuture bool) error {
	if start.IsZero() || end.IsZero() {
		return invalid("", "Start and end times are required.")
	}
	if !start.Before(end) {
		return invalid("end_time", "End time must be after start time.")
	}
	if end.Sub(start) < MinDuration {
		return invalid("", "Appointment must be at least 5 minutes long.")
	}
	if requireFuture && !start.After(now) {
		return invalid("start_time", "Start time must be in the future.")
	}
	return nil
}

func validateProvider(p *Provider) error {
	if !p.IsActive {
		return invalid("provider", "Provider account is inactive.")
	}
	if !IsEligibleProviderType(p.UserType) {
		return invalid("provider", "Selected provider is not eligible for appointments.")
	}
	return nil
}

func validatePatient(p *Patient) error {
	if !p.IsActive {
		return invalid("patient", "Patient profile is inactive.")
	}
	return nil
}
