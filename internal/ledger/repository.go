package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meritum-hr/meritum/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const occurrenceColumns = `id, user_id, employee_name, department, incident_type_id, incident_type_name,
	points, status, notes, period_id, registered_by, registered_by_name, created_by_rule_id,
	reviewed_by, reviewed_by_name, reviewed_at, created_at`

func scanOccurrence(row pgx.Row) (Occurrence, error) {
	var o Occurrence
	err := row.Scan(
		&o.ID, &o.UserID, &o.EmployeeName, &o.Department, &o.IncidentTypeID, &o.IncidentTypeName,
		&o.Points, &o.Status, &o.Notes, &o.PeriodID, &o.RegisteredBy, &o.RegisteredByName, &o.CreatedByRuleID,
		&o.ReviewedBy, &o.ReviewedByName, &o.ReviewedAt, &o.CreatedAt,
	)
	return o, err
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, email, display_name, department, is_active, balance, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.Department, &u.IsActive, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

// ListUsers returns every user, active or not. Rollover processes all of them.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, display_name, department, is_active, balance, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListActiveUsers returns active users, optionally narrowed to a department.
// An empty department means all departments.
func (r *Repository) ListActiveUsers(ctx context.Context, department string) ([]User, error) {
	query := `SELECT id, email, display_name, department, is_active, balance, created_at, updated_at FROM users WHERE is_active ORDER BY id`
	args := []any{}
	if department != "" {
		query = `SELECT id, email, display_name, department, is_active, balance, created_at, updated_at FROM users WHERE is_active AND department = $1 ORDER BY id`
		args = append(args, department)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Department, &u.IsActive, &u.Balance, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// InsertUser creates a user record with a zero balance.
func (r *Repository) InsertUser(ctx context.Context, u User) (User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, department, is_active, balance)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.DisplayName, u.Department, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Balance = 0
	return u, nil
}

// IncrementBalance applies a signed delta to the user's balance as a single
// atomic statement. Never read-modify-write: concurrent triggers for the
// same user must compose.
func (r *Repository) IncrementBalance(ctx context.Context, userID string, delta int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, userID, delta)
	if err != nil {
		return fmt.Errorf("ledger: increment balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetOccurrence fetches an occurrence by id.
func (r *Repository) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	o, err := scanOccurrence(r.pool.QueryRow(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Occurrence{}, ErrOccurrenceNotFound
		}
		return Occurrence{}, err
	}
	return o, nil
}

// InsertOccurrence persists a new occurrence and returns it with its
// creation timestamp filled in.
func (r *Repository) InsertOccurrence(ctx context.Context, o Occurrence) (Occurrence, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO occurrences (id, user_id, employee_name, department, incident_type_id, incident_type_name,
			points, status, notes, period_id, registered_by, registered_by_name, created_by_rule_id,
			reviewed_by, reviewed_by_name, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`,
		o.ID, o.UserID, o.EmployeeName, o.Department, o.IncidentTypeID, o.IncidentTypeName,
		o.Points, o.Status, o.Notes, o.PeriodID, o.RegisteredBy, o.RegisteredByName, o.CreatedByRuleID,
		o.ReviewedBy, o.ReviewedByName, o.ReviewedAt,
	).Scan(&o.CreatedAt)
	if err != nil {
		return Occurrence{}, fmt.Errorf("ledger: insert occurrence: %w", err)
	}
	return o, nil
}

// UpdateOccurrenceStatus transitions an occurrence's status inside a
// transaction and returns both the before and after state, which is what the
// balance updater needs. Points and period id are never touched here.
func (r *Repository) UpdateOccurrenceStatus(ctx context.Context, id string, status OccurrenceStatus, actorID, actorName string) (before, after Occurrence, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		before, err = scanOccurrence(tx.QueryRow(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOccurrenceNotFound
			}
			return err
		}
		after, err = scanOccurrence(tx.QueryRow(ctx, `
			UPDATE occurrences
			SET status = $2,
			    reviewed_by = CASE WHEN $2 = 'Pending' THEN NULL ELSE $3 END,
			    reviewed_by_name = CASE WHEN $2 = 'Pending' THEN NULL ELSE $4 END,
			    reviewed_at = CASE WHEN $2 = 'Pending' THEN NULL ELSE NOW() END
			WHERE id = $1
			RETURNING `+occurrenceColumns, id, status, actorID, actorName))
		return err
	})
	if err != nil {
		return Occurrence{}, Occurrence{}, err
	}
	return before, after, nil
}

// DeleteOccurrence removes an occurrence and returns the deleted state so
// the caller can trigger a balance reversal.
func (r *Repository) DeleteOccurrence(ctx context.Context, id string) (Occurrence, error) {
	o, err := scanOccurrence(r.pool.QueryRow(ctx, `DELETE FROM occurrences WHERE id = $1 RETURNING `+occurrenceColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Occurrence{}, ErrOccurrenceNotFound
		}
		return Occurrence{}, err
	}
	return o, nil
}

// CountApprovedOccurrences counts a user's Approved occurrences of a given
// incident type created at or after since.
func (r *Repository) CountApprovedOccurrences(ctx context.Context, userID, incidentTypeID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM occurrences
		WHERE user_id = $1 AND incident_type_id = $2 AND status = 'Approved' AND created_at >= $3`,
		userID, incidentTypeID, since,
	).Scan(&count)
	return count, err
}

// HasOccurrenceSince reports whether any occurrence of the given incident
// type exists for the user since the given instant, regardless of status.
func (r *Repository) HasOccurrenceSince(ctx context.Context, userID, incidentTypeID string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM occurrences
			WHERE user_id = $1 AND incident_type_id = $2 AND created_at >= $3
		)`, userID, incidentTypeID, since,
	).Scan(&exists)
	return exists, err
}

// ListOpenOccurrenceIDs returns ids of the user's occurrences that have not
// been tagged with a period yet.
func (r *Repository) ListOpenOccurrenceIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM occurrences WHERE user_id = $1 AND period_id IS NULL ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TagOccurrences stamps the closing period id onto the given occurrences as
// one atomic unit. Rows already tagged are left untouched, which is what
// makes rollover re-runs converge. Returns the number of rows tagged.
func (r *Repository) TagOccurrences(ctx context.Context, ids []string, periodID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE occurrences SET period_id = $1 WHERE id = ANY($2) AND period_id IS NULL`, periodID, ids)
	if err != nil {
		return 0, fmt.Errorf("ledger: tag occurrences: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SnapshotAndZero records the user's closing balance for the period and
// zeroes the live balance in a single transaction: there is never a window
// where the balance is zero without a snapshot, or the reverse. The insert
// is first-write-wins on (user_id, period_id): a re-run sees an already
// zeroed balance and must not clobber the recorded closing value.
func (r *Repository) SnapshotAndZero(ctx context.Context, snapshotID, userID, periodID string, balance int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO balance_snapshots (id, user_id, period_id, final_balance, recorded_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id, period_id) DO NOTHING`,
			snapshotID, userID, periodID, balance,
		); err != nil {
			return fmt.Errorf("ledger: write snapshot: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET balance = 0, updated_at = NOW() WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("ledger: zero balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// GetSnapshot fetches the balance snapshot for a (user, period) pair.
func (r *Repository) GetSnapshot(ctx context.Context, userID, periodID string) (BalanceSnapshot, error) {
	var s BalanceSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, period_id, final_balance, recorded_at
		FROM balance_snapshots WHERE user_id = $1 AND period_id = $2`,
		userID, periodID,
	).Scan(&s.ID, &s.UserID, &s.PeriodID, &s.FinalBalance, &s.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceSnapshot{}, ErrSnapshotNotFound
		}
		return BalanceSnapshot{}, err
	}
	return s, nil
}

// GetIncidentType fetches an incident type by id.
func (r *Repository) GetIncidentType(ctx context.Context, id string) (IncidentType, error) {
	var t IncidentType
	err := r.pool.QueryRow(ctx, `SELECT id, name, points FROM incident_types WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IncidentType{}, ErrIncidentTypeNotFound
		}
		return IncidentType{}, err
	}
	return t, nil
}
