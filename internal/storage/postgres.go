package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/models"
)

var (
	ErrEmailExists      = errors.New("email already registered")
	ErrEmployeeIDExists = errors.New("employee id already registered")
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they don't exist. The unique
// constraint on (identity_id, day) is what makes concurrent first events
// for the same key safe (see InsertDay).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS identities (
			id           UUID PRIMARY KEY,
			name         TEXT NOT NULL,
			email        TEXT NOT NULL,
			employee_id  TEXT NOT NULL,
			embedding    vector NOT NULL,
			portrait_key TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT identities_email_key UNIQUE (email),
			CONSTRAINT identities_employee_id_key UNIQUE (employee_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_days (
			id             UUID PRIMARY KEY,
			identity_id    UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			day            DATE NOT NULL,
			arrival_time   TIMESTAMPTZ NOT NULL,
			departure_time TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT attendance_days_identity_day_key UNIQUE (identity_id, day)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_days_day_idx ON attendance_days (day)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, name, email, employeeID string, embedding []float32, portraitKey string) (*models.Identity, error) {
	id := &models.Identity{
		ID:          uuid.New(),
		Name:        name,
		Email:       email,
		EmployeeID:  employeeID,
		Embedding:   embedding,
		PortraitKey: portraitKey,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, email, employee_id, embedding, portrait_key)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		id.ID, id.Name, id.Email, id.EmployeeID, pgvector.NewVector(embedding), id.PortraitKey,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "identities_email_key":
				return nil, ErrEmailExists
			case "identities_employee_id_key":
				return nil, ErrEmployeeIDExists
			}
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, employee_id, embedding, portrait_key, created_at, updated_at
		 FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.Email, &ident.EmployeeID, &vec,
		&ident.PortraitKey, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	ident.Embedding = vec.Slice()
	return ident, nil
}

// ListIdentities loads every enrolled identity with its embedding, in
// enrollment order. Dimension checks happen downstream in
// recognition.EmbeddingStore, which skips bad rows instead of failing the
// match pass.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, employee_id, embedding, portrait_key, created_at, updated_at
		 FROM identities ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var ident models.Identity
		var vec pgvector.Vector
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.EmployeeID, &vec,
			&ident.PortraitKey, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.Embedding = vec.Slice()
		identities = append(identities, ident)
	}
	return identities, rows.Err()
}

// --- Attendance days (attendance.Store) ---

func (s *PostgresStore) GetDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error) {
	rec := &models.AttendanceDay{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, identity_id, day, arrival_time, departure_time, created_at, updated_at
		 FROM attendance_days WHERE identity_id = $1 AND day = $2`,
		identityID, day,
	).Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.ArrivalTime, &rec.DepartureTime,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance day: %w", err)
	}
	return rec, nil
}

// InsertDay creates the day's record with its arrival time. A unique
// violation on (identity_id, day) is reported as attendance.ErrDuplicateDay
// so the ledger can retry the event as a departure update.
func (s *PostgresStore) InsertDay(ctx context.Context, identityID uuid.UUID, day, arrival time.Time) (*models.AttendanceDay, error) {
	rec := &models.AttendanceDay{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Day:         day,
		ArrivalTime: arrival,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO attendance_days (id, identity_id, day, arrival_time)
		 VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		rec.ID, rec.IdentityID, rec.Day, rec.ArrivalTime,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, attendance.ErrDuplicateDay
		}
		return nil, fmt.Errorf("insert attendance day: %w", err)
	}
	return rec, nil
}

// SetDeparture overwrites the day's departure time and returns the
// overwritten value (nil on the first departure). The prior value is read
// and replaced in a single statement so concurrent updaters each see a
// consistent before/after pair.
func (s *PostgresStore) SetDeparture(ctx context.Context, identityID uuid.UUID, day, departure time.Time) (*models.AttendanceDay, *time.Time, error) {
	rec := &models.AttendanceDay{
		IdentityID:    identityID,
		Day:           day,
		DepartureTime: &departure,
	}
	var prior *time.Time
	err := s.pool.QueryRow(ctx,
		`WITH prior AS (
			SELECT departure_time FROM attendance_days
			WHERE identity_id = $1 AND day = $2
		)
		UPDATE attendance_days a
		SET departure_time = $3, updated_at = now()
		FROM prior
		WHERE a.identity_id = $1 AND a.day = $2
		RETURNING a.id, a.arrival_time, a.created_at, a.updated_at, prior.departure_time`,
		identityID, day, departure,
	).Scan(&rec.ID, &rec.ArrivalTime, &rec.CreatedAt, &rec.UpdatedAt, &prior)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("set departure: no record for identity %s on %s", identityID, day.Format("2006-01-02"))
		}
		return nil, nil, fmt.Errorf("set departure: %w", err)
	}
	return rec, prior, nil
}

// --- Attendance queries ---

func (s *PostgresStore) ListAttendanceByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]models.AttendanceDay, error) {
	query := `SELECT id, identity_id, day, arrival_time, departure_time, created_at, updated_at
		 FROM attendance_days WHERE identity_id = $1 ORDER BY day DESC`
	args := []interface{}{identityID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()
	return scanAttendanceDays(rows)
}

func (s *PostgresStore) ListAttendanceByDay(ctx context.Context, day time.Time) ([]models.AttendanceDay, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, day, arrival_time, departure_time, created_at, updated_at
		 FROM attendance_days WHERE day = $1 ORDER BY arrival_time`, day)
	if err != nil {
		return nil, fmt.Errorf("list attendance by day: %w", err)
	}
	defer rows.Close()
	return scanAttendanceDays(rows)
}

func scanAttendanceDays(rows pgx.Rows) ([]models.AttendanceDay, error) {
	var records []models.AttendanceDay
	for rows.Next() {
		var rec models.AttendanceDay
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Day, &rec.ArrivalTime,
			&rec.DepartureTime, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance day: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AttendanceStats summarises an identity's records in [from, to].
type AttendanceStats struct {
	TotalDays      int     `json:"total_days"`
	CompleteDays   int     `json:"complete_days"`
	IncompleteDays int     `json:"incomplete_days"`
	CompletionRate float64 `json:"completion_rate"`
}

func (s *PostgresStore) GetAttendanceStats(ctx context.Context, identityID uuid.UUID, from, to *time.Time) (*AttendanceStats, error) {
	query := `SELECT COUNT(*), COUNT(departure_time) FROM attendance_days WHERE identity_id = $1`
	args := []interface{}{identityID}
	argIdx := 2

	if from != nil {
		query += fmt.Sprintf(" AND day >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		query += fmt.Sprintf(" AND day <= $%d", argIdx)
		args = append(args, *to)
	}

	stats := &AttendanceStats{}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&stats.TotalDays, &stats.CompleteDays); err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	stats.IncompleteDays = stats.TotalDays - stats.CompleteDays
	if stats.TotalDays > 0 {
		rate := float64(stats.CompleteDays) / float64(stats.TotalDays) * 100
		stats.CompletionRate = float64(int(rate*10+0.5)) / 10
	}
	return stats, nil
}
