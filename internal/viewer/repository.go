package viewer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists viewers.
type Repository interface {
	Create(ctx context.Context, v Viewer) error
	FindByExternalID(ctx context.Context, externalID string) (Viewer, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed viewer repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectViewer = `SELECT id, external_id, email, team, account_type, filters, password_hash, created_at FROM viewers`

// Create inserts a new viewer.
func (r *PostgresRepository) Create(ctx context.Context, v Viewer) error {
	viewerID, err := uuid.Parse(v.ID)
	if err != nil {
		return err
	}
	filters := v.Filters
	if filters == nil {
		filters = map[string]string{}
	}
	_, err = r.db.Exec(ctx, `INSERT INTO viewers (id, external_id, email, team, account_type, filters, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		viewerID, v.ExternalID, v.Email, v.Team, v.AccountType, filters, v.PasswordHash, v.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByExternalID fetches a viewer by the identifier carried in embed URLs.
func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (Viewer, error) {
	return scanViewer(r.db.QueryRow(ctx, selectViewer+` WHERE external_id = $1`, externalID))
}

func scanViewer(row pgx.Row) (Viewer, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		v         Viewer
	)
	if err := row.Scan(&id, &v.ExternalID, &v.Email, &v.Team, &v.AccountType, &v.Filters, &v.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Viewer{}, ErrNotFound
		}
		return Viewer{}, err
	}
	v.ID = id.String()
	v.CreatedAt = createdAt.UTC()
	return v, nil
}
