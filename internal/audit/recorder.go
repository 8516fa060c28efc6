package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

var (
	ErrTargetTypeRequired = errors.New("audit: target type is required")
	ErrEntryNotFound      = errors.New("audit entry not found")
)

// Store persists and reads audit entries. There is no update or delete.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// List returns one page and the number of entries matching f overall.
	List(ctx context.Context, f Filter) ([]Entry, int, error)
}

// Event describes one audited action before sanitization.
type Event struct {
	Actor      access.Principal
	Action     Action
	TargetType string
	TargetID   string
	Client     ClientInfo
	Changes    map[string]any
}

type Recorder struct {
	store Store
	log   zerolog.Logger
}

func NewRecorder(store Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Log writes exactly one entry for ev. Inside a unit of work the write is deferred
// until commit so entries never describe rolled back changes.
func (r *Recorder) Log(ctx context.Context, ev Event) error {
	if ev.TargetType == "" {
		return ErrTargetTypeRequired
	}

	entry := &Entry{
		ID:        uuid.New(),
		UserID:    access.ActorID(ev.Actor),
		Action:    ev.Action,
		ModelName: ev.TargetType,
		ObjectID:  ev.TargetID,
		Changes:   Sanitize(ev.Changes),
		IPAddress: ev.Client.IPAddress,
		UserAgent: truncateRunes(ev.Client.UserAgent, maxUserAgentLen),
	}

	if uow := db.UnitOfWorkFromContext(ctx); uow != nil {
		uow.OnCommit(func(ctx context.Context) {
			// the tx is gone; write through the pool
			if err := r.store.Insert(withoutUnitOfWork(ctx), entry); err != nil {
				r.log.Error().Err(err).
					Str("model_name", entry.ModelName).
					Str("object_id", entry.ObjectID).
					Str("action", string(entry.Action)).
					Msg("deferred audit write failed")
			}
		})
		return nil
	}

	if err := r.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// LogFromContext fills Actor and Client from the request context.
func (r *Recorder) LogFromContext(ctx context.Context, action Action, targetType, targetID string, changes map[string]any) error {
	return r.Log(ctx, Event{
		Actor:      access.PrincipalFromContext(ctx),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Client:     ClientInfoFromContext(ctx),
		Changes:    changes,
	})
}

func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.store.Get(ctx, id)
}

func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.store.List(ctx, f)
}

func withoutUnitOfWork(ctx context.Context) context.Context {
	return db.WithUnitOfWork(ctx, nil)
}
