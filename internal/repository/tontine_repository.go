package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

const uniqueViolation = "23505"

// schema is applied on startup by Migrate. The aggregate lives in one jsonb
// column; the scalar columns only serve filtering and the version CAS.
const schema = `
CREATE TABLE IF NOT EXISTS tontines (
    id TEXT PRIMARY KEY,
    invite_code TEXT NOT NULL UNIQUE,
    initiator_id TEXT NOT NULL,
    status TEXT NOT NULL,
    version BIGINT NOT NULL,
    document JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    tontine_id TEXT NOT NULL DEFAULT '',
    action_url TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tontines_initiator_id ON tontines(initiator_id);
CREATE INDEX IF NOT EXISTS idx_tontines_status ON tontines(status);
CREATE INDEX IF NOT EXISTS idx_tontines_participants ON tontines USING GIN ((document->'participants') jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id, created_at DESC);
`

// Migrate creates the tables used by the postgres repositories.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type tontineRow struct {
	ID       string `db:"id"`
	Version  int64  `db:"version"`
	Document []byte `db:"document"`
}

type tontineRepository struct {
	db *sqlx.DB
}

func NewTontineRepository(db *sqlx.DB) TontineRepository {
	return &tontineRepository{db: db}
}

func (r *tontineRepository) Load(ctx context.Context, id string) (*domain.Tontine, error) {
	query := `
		SELECT id, version, document
		FROM tontines
		WHERE id = $1
	`

	var row tontineRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapTontineNotFound(id)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return row.decode()
}

func (r *tontineRepository) Save(ctx context.Context, tontine *domain.Tontine) error {
	expected := tontine.Version
	next := *tontine
	next.Version = expected + 1

	document, err := json.Marshal(&next)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	if expected == 0 {
		query := `
			INSERT INTO tontines (id, invite_code, initiator_id, status, version, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err = r.db.ExecContext(ctx, query,
			next.ID,
			next.InviteCode,
			next.InitiatorID,
			next.Status,
			next.Version,
			string(document),
			next.CreatedAt,
			next.UpdatedAt,
		)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return customError.WrapConcurrencyConflict(next.ID)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		tontine.Version = next.Version
		return nil
	}

	query := `
		UPDATE tontines
		SET invite_code = $3, status = $4, version = $5, document = $6, updated_at = $7
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		next.ID,
		expected,
		next.InviteCode,
		next.Status,
		next.Version,
		string(document),
		next.UpdatedAt,
	)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tontines WHERE id = $1)`, next.ID); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if !exists {
			return customError.WrapTontineNotFound(next.ID)
		}
		return customError.WrapConcurrencyConflict(next.ID)
	}

	tontine.Version = next.Version
	return nil
}

func (r *tontineRepository) Delete(ctx context.Context, id string, version int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tontines WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tontines WHERE id = $1)`, id); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if !exists {
			return customError.WrapTontineNotFound(id)
		}
		return customError.WrapConcurrencyConflict(id)
	}
	return nil
}

func (r *tontineRepository) Query(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(condition string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.InitiatorID != "" {
		add("initiator_id = $%d", filter.InitiatorID)
	}
	if filter.InviteCode != "" {
		add("invite_code = upper($%d)", filter.InviteCode)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ParticipantUserID != "" {
		member, err := json.Marshal([]map[string]string{{"user_id": filter.ParticipantUserID}})
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		add("document->'participants' @> $%d::jsonb", string(member))
	}

	query := `SELECT id, version, document FROM tontines`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []tontineRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	tontines := make([]*domain.Tontine, 0, len(rows))
	for _, row := range rows {
		t, err := row.decode()
		if err != nil {
			return nil, err
		}
		tontines = append(tontines, t)
	}
	return tontines, nil
}

func (row tontineRow) decode() (*domain.Tontine, error) {
	var t domain.Tontine
	if err := json.Unmarshal(row.Document, &t); err != nil {
		return nil, customError.WrapDatabaseError(fmt.Errorf("decode tontine %s: %w", row.ID, err))
	}
	// the column is authoritative for the CAS
	t.Version = row.Version
	return &t, nil
}
