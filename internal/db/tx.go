package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnitOfWorkClosed = errors.New("unit of work already finished")

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Tx is what a unit of work needs from the underlying transaction. pgx.Tx satisfies it.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork owns a transaction and the callbacks that must only run once it commits.
type UnitOfWork struct {
	tx Tx

	mu       sync.Mutex
	onCommit []func(ctx context.Context)
	done     bool
}

func NewUnitOfWork(tx Tx) *UnitOfWork {
	return &UnitOfWork{tx: tx}
}

func (u *UnitOfWork) Querier() Querier {
	return u.tx
}

// OnCommit queues fn to run after a successful commit. Callbacks are dropped on rollback.
func (u *UnitOfWork) OnCommit(fn func(ctx context.Context)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onCommit = append(u.onCommit, fn)
}

// Commit commits the transaction and then drains the queued callbacks in order.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	callbacks, err := u.finish()
	if err != nil {
		return err
	}

	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, fn := range callbacks {
		fn(ctx)
	}
	return nil
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if _, err := u.finish(); err != nil {
		return err
	}
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (u *UnitOfWork) finish() ([]func(ctx context.Context), error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil, ErrUnitOfWorkClosed
	}
	u.done = true
	callbacks := u.onCommit
	u.onCommit = nil
	return callbacks, nil
}

type uowKey struct{}

func WithUnitOfWork(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, uowKey{}, u)
}

// UnitOfWorkFromContext returns the active unit of work, or nil outside a transaction.
func UnitOfWorkFromContext(ctx context.Context) *UnitOfWork {
	u, _ := ctx.Value(uowKey{}).(*UnitOfWork)
	return u
}

// QuerierFromContext prefers the transaction bound to ctx and falls back to fallback.
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if u := UnitOfWorkFromContext(ctx); u != nil {
		return u.Querier()
	}
	return fallback
}

// Manager starts units of work.
type Manager struct {
	begin func(ctx context.Context) (Tx, error)
}

func NewManager(pool *pgxpool.Pool) *Manager {
	return &Manager{
		begin: func(ctx context.Context) (Tx, error) {
			tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
			if err != nil {
				return nil, err
			}
			return tx, nil
		},
	}
}

// NewManagerFunc builds a Manager around a custom begin function.
func NewManagerFunc(begin func(ctx context.Context) (Tx, error)) *Manager {
	return &Manager{begin: begin}
}

// RunInTx runs fn inside a unit of work. A nested call joins the outer one.
func (m *Manager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if UnitOfWorkFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	uow := NewUnitOfWork(tx)

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(WithUnitOfWork(ctx, uow)); err != nil {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return uow.Commit(ctx)
}
