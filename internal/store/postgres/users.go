package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/model"
)

// UserRepo implements store.UserStore.
type UserRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id::text, tenant_slug, name, phone, coalesce(email, ''),
	coalesce(password_hash, ''), role, address, farm_profile,
	trust_score, consistency_score, coalesce(reset_token, ''), reset_expires,
	created_at, updated_at`

// Create inserts a user; duplicate (tenant_slug, phone) surfaces as
// store.ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (tenant_slug, name, phone, email, password_hash, role,
			address, farm_profile, trust_score, consistency_score)
		VALUES ($1, $2, $3, nullif($4, ''), nullif($5, ''), $6, $7, $8, $9, $10)
		RETURNING `+userColumns,
		u.TenantSlug, u.Name, u.Phone, u.Email, u.PasswordHash, u.Role,
		toJSON(u.Address), toJSON(u.FarmProfile), scoreOrDefault(u.TrustScore), scoreOrDefault(u.ConsistencyScore))
	created, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: create", err)
	}
	return created, nil
}

// GetByID returns a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: get by id", err)
	}
	return u, nil
}

// GetByIDs returns the users whose ids are in the list; missing ids are
// simply absent from the result.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("users: get by ids", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapErr("users: get by ids scan", err)
		}
		out = append(out, u)
	}
	return out, wrapErr("users: get by ids rows", rows.Err())
}

// GetByPhone looks up a user within a tenant by phone.
func (r *UserRepo) GetByPhone(ctx context.Context, tenantSlug, phone string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_slug = $1 AND phone = $2`, tenantSlug, phone)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: get by phone", err)
	}
	return u, nil
}

// GetByEmail looks up a user by email, scoped to a tenant when tenantSlug is
// non-empty.
func (r *UserRepo) GetByEmail(ctx context.Context, tenantSlug, email string) (model.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(email) = lower($1) AND ($2 = '' OR tenant_slug = $2)
		LIMIT 1`, email, tenantSlug)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: get by email", err)
	}
	return u, nil
}

// GetByResetToken returns the user matching email and an unexpired reset
// token.
func (r *UserRepo) GetByResetToken(ctx context.Context, email, token string) (model.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE lower(email) = lower($1) AND reset_token = $2 AND reset_expires > now()`,
		email, token)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: get by reset token", err)
	}
	return u, nil
}

// UpdateProfile replaces the user's address.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, addr model.Address) (model.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET address = $2, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+userColumns, id, toJSON(addr))
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, wrapErr("users: update profile", err)
	}
	return u, nil
}

// SetResetToken stores a single-use password reset token with expiry.
func (r *UserRepo) SetResetToken(ctx context.Context, id, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token = $2, reset_expires = $3, updated_at = now()
		WHERE id = $1::uuid`, id, token, expires)
	if err != nil {
		return wrapErr("users: set reset token", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("users: set reset token", errNoRows)
	}
	return nil
}

// UpdatePassword sets a new password hash and clears any reset token.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, reset_token = NULL, reset_expires = NULL, updated_at = now()
		WHERE id = $1::uuid`, id, passwordHash)
	if err != nil {
		return wrapErr("users: update password", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("users: update password", errNoRows)
	}
	return nil
}

func scoreOrDefault(v int) int {
	if v <= 0 {
		return 100
	}
	return v
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u             model.User
		addr, profile []byte
		resetExpires  *time.Time
	)
	if err := row.Scan(&u.ID, &u.TenantSlug, &u.Name, &u.Phone, &u.Email,
		&u.PasswordHash, &u.Role, &addr, &profile,
		&u.TrustScore, &u.ConsistencyScore, &u.ResetToken, &resetExpires,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	fromJSON(addr, &u.Address)
	fromJSON(profile, &u.FarmProfile)
	u.ResetExpires = resetExpires
	return u, nil
}
