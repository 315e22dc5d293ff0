package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Observer times logical DB operations. *observability.Prom implements it.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

type noopObserver struct{}

func (noopObserver) ObserveDB(_ string, fn func() error) error { return fn() }

const userColumns = `id, username, email, password_hash, role, is_verified, is_first_login,
	otp_code, otp_expires_at, reset_token, reset_token_expires_at, created_at, updated_at`

type UsersRepo struct {
	db  DB
	obs Observer
	now func() time.Time
}

func NewUsersRepo(db DB, obs Observer) *UsersRepo {
	if obs == nil {
		obs = noopObserver{}
	}
	return &UsersRepo{db: db, obs: obs, now: time.Now}
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u    user.User
		role string
	)

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.IsVerified,
		&u.IsFirstLogin,
		&u.OTPCode,
		&u.OTPExpiresAt,
		&u.ResetToken,
		&u.ResetTokenExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, notFound(err)
		}
		return user.User{}, err
	}

	u.Role = user.Role(role)
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	now := r.now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		IsVerified:   in.IsVerified,
		IsFirstLogin: in.IsFirstLogin,
		OTPCode:      in.OTPCode,
		OTPExpiresAt: in.OTPExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.obs.ObserveDB("users.create", func() error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO users (id, username, email, password_hash, role, is_verified, is_first_login,
				otp_code, otp_expires_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsVerified, u.IsFirstLogin,
			u.OTPCode, u.OTPExpiresAt, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if strings.Contains(constraint, "email") {
				return user.User{}, user.ErrEmailTaken
			}
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.obs.ObserveDB(op, func() error {
		var err error
		u, err = scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	return r.getOne(ctx, "users.get_by_id", `id = $1`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `email = $1`, user.NormalizeEmail(email))
}

// GetByLogin accepts either a username or an email address.
func (r *UsersRepo) GetByLogin(ctx context.Context, login string) (user.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return r.GetByEmail(ctx, login)
	}
	return r.getOne(ctx, "users.get_by_username", `username = $1`, login)
}

// SetOTP stores a fresh code, replacing any previous one. Verified accounts are left untouched.
func (r *UsersRepo) SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	return r.obs.ObserveDB("users.set_otp", func() error {
		tag, err := r.db.Exec(ctx, `
			UPDATE users
			SET otp_code = $2, otp_expires_at = $3, updated_at = NOW()
			WHERE id = $1 AND is_verified = FALSE
		`, id, code, expiresAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrStateChanged
		}
		return nil
	})
}

// ConsumeOTP flips the account to verified only if the same code is still on
// file and unexpired, so a code cannot be redeemed twice under a race.
func (r *UsersRepo) ConsumeOTP(ctx context.Context, id, code string, now time.Time) error {
	return r.obs.ObserveDB("users.consume_otp", func() error {
		tag, err := r.db.Exec(ctx, `
			UPDATE users
			SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, updated_at = NOW()
			WHERE id = $1 AND otp_code = $2 AND otp_expires_at > $3 AND is_verified = FALSE
		`, id, code, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrStateChanged
		}
		return nil
	})
}

func (r *UsersRepo) SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) (user.User, error) {
	var u user.User

	err := r.obs.ObserveDB("users.set_reset_token", func() error {
		var err error
		u, err = scanUser(r.db.QueryRow(ctx, `
			UPDATE users
			SET reset_token = $2, reset_token_expires_at = $3, updated_at = NOW()
			WHERE email = $1
			RETURNING `+userColumns,
			user.NormalizeEmail(email), token, expiresAt,
		))
		return err
	})

	return u, err
}

// ResetPassword matches the token and its expiry and swaps the password in a
// single statement. Unknown, expired and already used tokens all miss.
func (r *UsersRepo) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (user.User, error) {
	var u user.User

	err := r.obs.ObserveDB("users.reset_password", func() error {
		var err error
		u, err = scanUser(r.db.QueryRow(ctx, `
			UPDATE users
			SET password_hash = $2, reset_token = NULL, reset_token_expires_at = NULL,
				is_first_login = FALSE, updated_at = NOW()
			WHERE reset_token = $1 AND reset_token_expires_at > $3
			RETURNING `+userColumns,
			token, passwordHash, now,
		))
		return err
	})

	if errors.Is(err, user.ErrNotFound) {
		return user.User{}, user.ErrResetTokenInvalid
	}
	return u, err
}

// UpdatePassword sets a new hash and ends the first-login state.
func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.obs.ObserveDB("users.update_password", func() error {
		tag, err := r.db.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, is_first_login = FALSE, updated_at = NOW()
			WHERE id = $1
		`, id, passwordHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

// lockAdmins row-locks every admin and returns the count plus the target's current role.
// Concurrent deletes or demotions serialise on these locks.
func lockAdmins(ctx context.Context, tx pgx.Tx, id string) (int, user.Role, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM users WHERE role = 'admin' FOR UPDATE`)
	if err != nil {
		return 0, "", err
	}

	admins := 0
	for rows.Next() {
		admins++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, "", err
	}

	var role string
	err = tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", notFound(err)
		}
		return 0, "", err
	}

	return admins, user.Role(role), nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	return r.obs.ObserveDB("users.delete", func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		admins, role, err := lockAdmins(ctx, tx, id)
		if err != nil {
			return err
		}

		if role == user.RoleAdmin && admins <= 1 {
			return user.ErrLastAdmin
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id string, role user.Role) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}

	var u user.User

	err := r.obs.ObserveDB("users.update_role", func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		admins, current, err := lockAdmins(ctx, tx, id)
		if err != nil {
			return err
		}

		if current == user.RoleAdmin && role != user.RoleAdmin && admins <= 1 {
			return user.ErrLastAdmin
		}

		u, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET role = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, string(role),
		))
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	return u, err
}

func (r *UsersRepo) List(ctx context.Context, f user.ListFilter) ([]user.User, error) {
	var (
		where []string
		args  []any
	)

	if f.OnlyID != "" {
		args = append(args, f.OnlyID)
		where = append(where, "id = $"+strconv.Itoa(len(args)))
	}

	if !f.AfterCreatedAt.IsZero() && f.AfterID != "" {
		args = append(args, f.AfterCreatedAt, f.AfterID)
		where = append(where, "(created_at, id) > ($"+strconv.Itoa(len(args)-1)+", $"+strconv.Itoa(len(args))+")")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit)

	q := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id LIMIT $` + strconv.Itoa(len(args))

	out := make([]user.User, 0, limit)

	err := r.obs.ObserveDB("users.list", func() error {
		rows, err := r.db.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// notFound keeps pgx.ErrNoRows in the chain so DB metrics count a miss as not_found.
func notFound(err error) error {
	return fmt.Errorf("%w: %w", user.ErrNotFound, err)
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
