package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, s.pool)
}

const entryCols = `id, user_id, action, model_name, object_id, changes, timestamp, host(ip_address), user_agent`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var changes []byte

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Action,
		&e.ModelName,
		&e.ObjectID,
		&changes,
		&e.Timestamp,
		&e.IPAddress,
		&e.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
	}
	return &e, nil
}

func (s *PgStore) Insert(ctx context.Context, e *Entry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}

	row := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_trail (id, user_id, action, model_name, object_id, changes, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7::inet, $8)
		RETURNING timestamp
	`, e.ID, e.UserID, e.Action, e.ModelName, e.ObjectID, changes, e.IPAddress, e.UserAgent)

	if err := row.Scan(&e.Timestamp); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM audit_trail WHERE id = $1`, id)
	return scanEntry(row)
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.ModelName != "" {
		args = append(args, f.ModelName)
		where = append(where, fmt.Sprintf("model_name = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}

	var filter string
	if len(where) > 0 {
		filter = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM audit_trail`+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + entryCols + ` FROM audit_trail` + filter +
		fmt.Sprintf(` ORDER BY timestamp DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}
