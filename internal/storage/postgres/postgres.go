package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Phatcm/event-management-system/internal/config"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/Phatcm/event-management-system/internal/storage/postgres/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := runMigrations(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// ---- users ----

func (r *PostgresRepo) SaveUser(ctx context.Context, u *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (uid, email, username, password_hash, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`

	_, err := r.pool.Exec(ctx, query,
		u.UID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT uid, email, username, password_hash, first_name, last_name, role, is_verified, created_at, updated_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByUID(ctx context.Context, uid uuid.UUID) (models.User, error) {
	query := `
		SELECT uid, email, username, password_hash, first_name, last_name, role, is_verified, created_at, updated_at
		FROM users
		WHERE uid = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, uid))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.UID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, uid uuid.UUID) error {
	query := `UPDATE users SET is_verified = TRUE, updated_at = now() WHERE uid = $1`

	tag, err := r.pool.Exec(ctx, query, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// ---- events ----

// eventColumns is shared by every event query so rsvp_count is always
// derived from live reservations rather than a maintained counter.
const eventColumns = `
	e.uid, e.title, e.user_uid, e.creator, e.description, e.location, e.category, e.capacity,
	(SELECT COUNT(*) FROM rsvps r WHERE r.event_uid = e.uid) AS rsvp_count,
	e.created_at, e.updated_at
`

func (r *PostgresRepo) SaveEvent(ctx context.Context, e *models.Event) error {
	const op = "storage.postgres.SaveEvent"

	query := `
		INSERT INTO events (uid, title, user_uid, creator, description, location, category, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`

	_, err := r.pool.Exec(ctx, query,
		e.UID, e.Title, e.OwnerUID, e.Creator, e.Description, e.Location, e.Category, e.Capacity, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to save event: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Event(ctx context.Context, uid uuid.UUID) (models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.uid = $1;`

	e, err := scanEvent(r.pool.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, storage.ErrEventNotFound
		}

		return models.Event{}, err
	}

	return e, nil
}

func (r *PostgresRepo) Events(ctx context.Context) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e ORDER BY e.created_at DESC;`

	return r.queryEvents(ctx, query)
}

// UpdateEvent replaces every mutable field, the caller supplies all of them.
func (r *PostgresRepo) UpdateEvent(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE events
		SET title = $1, creator = $2, description = $3, location = $4, category = $5, capacity = $6, updated_at = $7
		WHERE uid = $8;
	`

	tag, err := r.pool.Exec(ctx, query,
		e.Title, e.Creator, e.Description, e.Location, e.Category, e.Capacity, e.UpdatedAt, e.UID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrEventNotFound
	}

	return nil
}

// DeleteEvent removes the event; its rsvps go with it via ON DELETE CASCADE.
func (r *PostgresRepo) DeleteEvent(ctx context.Context, uid uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrEventNotFound
	}

	return nil
}

func (r *PostgresRepo) SearchEvents(ctx context.Context, search string) ([]models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.title ILIKE '%' || $1 || '%' OR e.description ILIKE '%' || $1 || '%'
		ORDER BY e.created_at DESC;
	`

	return r.queryEvents(ctx, query, search)
}

func (r *PostgresRepo) FilterEvents(ctx context.Context, f models.EventFilter) ([]models.Event, error) {
	var (
		conds []string
		args  []any
	)

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Location != "" {
		add("e.location = $%d", f.Location)
	}
	if f.Category != "" {
		add("e.category = $%d", f.Category)
	}
	if f.Creator != "" {
		add("e.creator = $%d", f.Creator)
	}
	if !f.CreatedAfter.IsZero() {
		add("e.created_at >= $%d", f.CreatedAfter)
	}
	if !f.CreatedBefore.IsZero() {
		add("e.created_at <= $%d", f.CreatedBefore)
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY e.created_at DESC;`

	return r.queryEvents(ctx, query, args...)
}

// EventsPage returns one offset-based page in the store's natural order,
// newest first.
func (r *PostgresRepo) EventsPage(ctx context.Context, limit, offset int) ([]models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		ORDER BY e.created_at DESC
		LIMIT $1 OFFSET $2;
	`

	return r.queryEvents(ctx, query, limit, offset)
}

func (r *PostgresRepo) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func scanEvent(row pgx.Row) (models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.UID,
		&e.Title,
		&e.OwnerUID,
		&e.Creator,
		&e.Description,
		&e.Location,
		&e.Category,
		&e.Capacity,
		&e.RSVPCount,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return models.Event{}, err
	}

	return e, nil
}

// ---- rsvps ----

func (r *PostgresRepo) RSVPsByUser(ctx context.Context, userUID uuid.UUID) ([]models.RSVP, error) {
	query := `
		SELECT uid, user_uid, event_uid, rsvp_date
		FROM rsvps
		WHERE user_uid = $1
		ORDER BY rsvp_date DESC;
	`

	rows, err := r.pool.Query(ctx, query, userUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rsvps := []models.RSVP{}
	for rows.Next() {
		var rsvp models.RSVP
		if err := rows.Scan(&rsvp.UID, &rsvp.UserUID, &rsvp.EventUID, &rsvp.RSVPDate); err != nil {
			return nil, err
		}
		rsvps = append(rsvps, rsvp)
	}

	return rsvps, rows.Err()
}

func (r *PostgresRepo) RSVPByUID(ctx context.Context, uid uuid.UUID) (models.RSVP, error) {
	query := `
		SELECT uid, user_uid, event_uid, rsvp_date
		FROM rsvps
		WHERE uid = $1;
	`

	var rsvp models.RSVP
	err := r.pool.QueryRow(ctx, query, uid).Scan(&rsvp.UID, &rsvp.UserUID, &rsvp.EventUID, &rsvp.RSVPDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RSVP{}, storage.ErrRSVPNotFound
		}

		return models.RSVP{}, err
	}

	return rsvp, nil
}

func (r *PostgresRepo) DeleteRSVP(ctx context.Context, uid uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rsvps WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrRSVPNotFound
	}

	return nil
}

// InAdmissionTx runs fn inside a transaction. EventForUpdate takes a
// row-level lock (SELECT ... FOR UPDATE), which serialises concurrent
// reservation attempts on the same event: the second transaction blocks on
// the lock until the first commits, then sees its insert.
func (r *PostgresRepo) InAdmissionTx(ctx context.Context, fn func(tx storage.AdmissionTx) error) error {
	const op = "storage.postgres.InAdmissionTx"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&admissionTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

type admissionTx struct {
	tx pgx.Tx
}

var _ storage.AdmissionTx = (*admissionTx)(nil)

func (a *admissionTx) HasRSVP(ctx context.Context, eventUID, userUID uuid.UUID) (bool, error) {
	var n int
	err := a.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rsvps WHERE event_uid = $1 AND user_uid = $2`,
		eventUID, userUID,
	).Scan(&n)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (a *admissionTx) EventForUpdate(ctx context.Context, eventUID uuid.UUID) (models.Event, error) {
	var e models.Event
	err := a.tx.QueryRow(ctx,
		`SELECT uid, title, user_uid, creator, description, location, category, capacity, created_at, updated_at
		 FROM events
		 WHERE uid = $1
		 FOR UPDATE`,
		eventUID,
	).Scan(
		&e.UID, &e.Title, &e.OwnerUID, &e.Creator, &e.Description,
		&e.Location, &e.Category, &e.Capacity, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, storage.ErrEventNotFound
		}

		return models.Event{}, err
	}

	return e, nil
}

func (a *admissionTx) LiveRSVPCount(ctx context.Context, eventUID uuid.UUID) (int, error) {
	var n int
	err := a.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rsvps WHERE event_uid = $1`,
		eventUID,
	).Scan(&n)

	return n, err
}

func (a *admissionTx) InsertRSVP(ctx context.Context, rsvp *models.RSVP) error {
	_, err := a.tx.Exec(ctx,
		`INSERT INTO rsvps (uid, user_uid, event_uid, rsvp_date) VALUES ($1, $2, $3, $4)`,
		rsvp.UID, rsvp.UserUID, rsvp.EventUID, rsvp.RSVPDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrAlreadyReserved
		}

		return err
	}

	return nil
}

// dsn builds the connection string from the database section of the config.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
