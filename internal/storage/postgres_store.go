package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/carpool-matching/internal/models"
)

const matchColumns = `id, trip_id, passenger_id, driver_id, match_score, status, created_at, updated_at`

var _ MatchStore = (*PostgresStore)(nil)

type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(time.Hour)
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate executes a schema script such as migrations/001_create_matches.sql.
func (p *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := p.db.ExecContext(ctx, script)
	return err
}

func (p *PostgresStore) Save(ctx context.Context, m *models.Match) (*models.Match, error) {
	now := p.now().UTC()
	var out models.Match
	if m.ID == "" {
		status := m.Status
		if status == "" {
			status = models.StatusPending
		}
		// the unique (trip_id, passenger_id) constraint turns a racing insert into a refresh
		err := p.db.QueryRowxContext(ctx, `
			INSERT INTO matches (`+matchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (trip_id, passenger_id) DO UPDATE
			SET driver_id = EXCLUDED.driver_id,
			    match_score = EXCLUDED.match_score,
			    updated_at = EXCLUDED.updated_at
			RETURNING `+matchColumns,
			uuid.NewString(), m.TripID, m.PassengerID, m.DriverID, m.MatchScore, status, now,
		).StructScan(&out)
		if err != nil {
			return nil, fmt.Errorf("insert match: %w", err)
		}
		return &out, nil
	}

	err := p.db.QueryRowxContext(ctx, `
		UPDATE matches
		SET driver_id = $1, match_score = $2, updated_at = $3
		WHERE id = $4
		RETURNING `+matchColumns,
		m.DriverID, m.MatchScore, now, m.ID,
	).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) || malformedID(err) {
		return nil, models.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update match %s: %w", m.ID, err)
	}
	return &out, nil
}

func (p *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (*models.Match, error) {
	if !models.CanTransition(from, to) {
		return nil, models.ErrInvalidTransition
	}
	var out models.Match
	err := p.db.QueryRowxContext(ctx, `
		UPDATE matches
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING `+matchColumns,
		to, at.UTC(), id, from,
	).StructScan(&out)
	if malformedID(err) {
		return nil, models.ErrMatchNotFound
	}
	if errors.Is(err, sql.ErrNoRows) {
		// nothing updated: either the id is unknown or someone moved it first
		if _, ferr := p.FindByID(ctx, id); ferr != nil {
			return nil, ferr
		}
		return nil, models.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("transition match %s: %w", id, err)
	}
	return &out, nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*models.Match, error) {
	return p.getOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
}

func (p *PostgresStore) FindByTripIDAndPassengerID(ctx context.Context, tripID, passengerID string) (*models.Match, error) {
	return p.getOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE trip_id = $1 AND passenger_id = $2`, tripID, passengerID)
}

func (p *PostgresStore) FindByPassengerID(ctx context.Context, passengerID string) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE passenger_id = $1 ORDER BY match_score DESC, updated_at DESC`, passengerID)
}

func (p *PostgresStore) FindByDriverID(ctx context.Context, driverID string) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE driver_id = $1 ORDER BY match_score DESC, updated_at DESC`, driverID)
}

func (p *PostgresStore) FindByStatus(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE status = $1 ORDER BY match_score DESC, updated_at DESC`, status)
}

func (p *PostgresStore) FindByScoreAtLeast(ctx context.Context, threshold float64) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_score >= $1 ORDER BY match_score DESC, updated_at DESC`, threshold)
}

func (p *PostgresStore) FindByPassengerIDCreatedBetween(ctx context.Context, passengerID string, from, to time.Time) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE passenger_id = $1 AND created_at BETWEEN $2 AND $3 ORDER BY created_at`, passengerID, from, to)
}

func (p *PostgresStore) FindByDriverIDCreatedBetween(ctx context.Context, driverID string, from, to time.Time) ([]*models.Match, error) {
	return p.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE driver_id = $1 AND created_at BETWEEN $2 AND $3 ORDER BY created_at`, driverID, from, to)
}

func (p *PostgresStore) getOne(ctx context.Context, query string, args ...any) (*models.Match, error) {
	var m models.Match
	if err := p.db.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) || malformedID(err) {
			return nil, models.ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// malformedID reports a value Postgres refused to parse as a uuid. No row can
// carry such an id.
func malformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
