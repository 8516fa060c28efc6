package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Appointments   AppointmentService
	AuditLogs      AuditReader
	Authenticator  Authenticator
	Policy         Authorizer
	Health         *HealthHandler
	Logger         zerolog.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	errs := errorWriter{log: cfg.Logger}
	appointments := &resource{name: "appointment", policy: cfg.Policy, handlers: appointmentHandlers(cfg.Appointments), errs: errs}
	auditLogs := &resource{name: "audit_log", policy: cfg.Policy, handlers: auditLogHandlers(cfg.AuditLogs), errs: errs}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Authenticator))
		r.Use(ClientInfoMiddleware)

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", appointments.dispatch(ActionList))
			r.Post("/", appointments.dispatch(ActionCreate))
			r.Get("/upcoming", appointments.dispatch(ActionUpcoming))
			r.Post("/check-conflicts", appointments.dispatch(ActionPreviewConflicts))
			r.Get("/by-provider/{providerID}", appointments.dispatch(ActionByProvider))
			r.Get("/by-patient/{patientID}", appointments.dispatch(ActionByPatient))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appointments.dispatch(ActionRetrieve))
				r.Put("/", appointments.dispatch(ActionUpdate))
				r.Patch("/", appointments.dispatch(ActionPartialUpdate))
				r.Delete("/", appointments.dispatch(ActionDestroy))
				r.Post("/cancel", appointments.dispatch(ActionCancel))
				r.Post("/complete", appointments.dispatch(ActionComplete))
				r.Post("/mark-no-show", appointments.dispatch(ActionMarkNoShow))
				r.Post("/check-conflicts", appointments.dispatch(ActionCheckConflicts))
			})
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Get("/", auditLogs.dispatch(ActionList))
			r.Get("/{id}", auditLogs.dispatch(ActionRetrieve))
		})
	})

	return r
}
