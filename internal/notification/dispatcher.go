package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EmailSender and SMSSender are the outbound gateways. Production providers live
// outside this service; LogChannel stands in for both.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) error
}

type Dispatcher struct {
	email EmailSender
	sms   SMSSender
	log   zerolog.Logger
	now   func() time.Time
}

func NewDispatcher(email EmailSender, sms SMSSender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		email: email,
		sms:   sms,
		log:   log,
		now:   time.Now,
	}
}

// Dispatch sends n to the patient and the provider over every channel they have an
// address for. Failures are logged and skipped; only successful sends are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) []Delivery {
	d.log.Info().
		Str("event", string(n.Event)).
		Str("appointment_id", n.AppointmentID.String()).
		Time("start_time", n.StartTime).
		Msg("appointment notification")

	var out []Delivery
	out = append(out, d.notify(ctx, n, RecipientPatient, n.Patient)...)
	out = append(out, d.notify(ctx, n, RecipientProvider, n.Provider)...)
	return out
}

func (d *Dispatcher) notify(ctx context.Context, n Notice, who Recipient, c Contact) []Delivery {
	var out []Delivery

	if c.Email != "" && d.email != nil {
		if err := d.email.SendEmail(ctx, c.Email, subject(n), emailBody(n, c.Name)); err != nil {
			d.log.Error().Err(err).
				Str("recipient", string(who)).
				Str("appointment_id", n.AppointmentID.String()).
				Msg("email notification failed")
		} else {
			out = append(out, Delivery{Type: MethodEmail, Recipient: who, Method: MethodEmail, SentAt: d.now().UTC()})
		}
	}

	if c.Phone != "" && d.sms != nil {
		if err := d.sms.SendSMS(ctx, c.Phone, smsText(n)); err != nil {
			d.log.Error().Err(err).
				Str("recipient", string(who)).
				Str("appointment_id", n.AppointmentID.String()).
				Msg("sms notification failed")
		} else {
			out = append(out, Delivery{Type: MethodSMS, Recipient: who, Method: MethodSMS, SentAt: d.now().UTC()})
		}
	}

	return out
}

// LogChannel writes rendered messages to the log instead of a gateway.
type LogChannel struct {
	log zerolog.Logger
}

func NewLogChannel(log zerolog.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) SendEmail(_ context.Context, to, subject, body string) error {
	c.log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email")
	return nil
}

func (c *LogChannel) SendSMS(_ context.Context, to, text string) error {
	c.log.Info().Str("to", to).Str("text", text).Msg("sms")
	return nil
}
