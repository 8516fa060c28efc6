package notification

import (
	"fmt"
	"strings"
)

const (
	longDate  = "January 02, 2006 at 03:04 PM"
	shortDate = "Jan 02, 2006 at 03:04 PM"
	signoff   = "Thank you,\nOpenCare-Africa Team"
)

func subject(n Notice) string {
	when := n.StartTime.Format(longDate)
	switch n.Event {
	case EventCreated:
		return "Appointment Scheduled - " + when
	case EventUpdated:
		return "Appointment Updated - " + when
	case EventCancelled:
		return "Appointment Cancelled - " + when
	case EventReminder:
		return "Appointment Reminder - " + when
	default:
		return "Appointment Notification"
	}
}

func emailBody(n Notice, recipientName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", recipientName)

	when := n.StartTime.Format(longDate)
	minutes := int(n.Duration.Minutes())

	participants := func() {
		fmt.Fprintf(&b, "Patient: %s\nProvider: %s\nFacility: %s\n", n.Patient.Name, n.Provider.Name, n.FacilityName)
	}

	switch n.Event {
	case EventCreated:
		b.WriteString("Your appointment has been scheduled:\n\n")
		participants()
		fmt.Fprintf(&b, "Date & Time: %s\nDuration: %d minutes\n", when, minutes)
		fmt.Fprintf(&b, "Type: %s\nReason: %s\n\n", orDefault(n.AppointmentType, "General Consultation"), orDefault(n.Reason, "Not specified"))
		b.WriteString("Please arrive 10 minutes before your scheduled time.\n\n")
	case EventUpdated:
		b.WriteString("Your appointment has been updated:\n\n")
		participants()
		fmt.Fprintf(&b, "New Date & Time: %s\nDuration: %d minutes\n\n", when, minutes)
		b.WriteString("Please note the new time and arrive 10 minutes early.\n\n")
	case EventCancelled:
		b.WriteString("Your appointment has been cancelled:\n\n")
		participants()
		fmt.Fprintf(&b, "Original Date & Time: %s\n\n", when)
		b.WriteString("If you need to reschedule, please contact the facility or book a new appointment.\n\n")
	case EventReminder:
		b.WriteString("This is a reminder about your upcoming appointment:\n\n")
		participants()
		fmt.Fprintf(&b, "Date & Time: %s\nDuration: %d minutes\n\n", when, minutes)
		b.WriteString("Please arrive 10 minutes before your scheduled time.\n\n")
	default:
		return "Appointment notification"
	}

	b.WriteString(signoff)
	return b.String()
}

func smsText(n Notice) string {
	when := n.StartTime.Format(shortDate)
	switch n.Event {
	case EventCreated:
		return fmt.Sprintf("Appointment scheduled: %s with %s at %s. Arrive 10 mins early.", when, n.Provider.Name, n.FacilityName)
	case EventUpdated:
		return fmt.Sprintf("Appointment updated: %s with %s at %s.", when, n.Provider.Name, n.FacilityName)
	case EventCancelled:
		return fmt.Sprintf("Appointment cancelled: %s with %s. Contact facility to reschedule.", when, n.Provider.Name)
	case EventReminder:
		return fmt.Sprintf("Reminder: Appointment %s with %s at %s.", when, n.Provider.Name, n.FacilityName)
	default:
		return "Appointment notification"
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
