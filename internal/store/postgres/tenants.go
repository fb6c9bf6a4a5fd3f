package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/model"
)

// TenantRepo implements store.TenantStore.
type TenantRepo struct {
	pool *pgxpool.Pool
}

const tenantColumns = `id::text, slug, name, address, coalesce(admin_contact, ''), created_at`

// GetBySlug returns the tenant with the given slug.
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (model.Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	t, err := scanTenant(row)
	if err != nil {
		return model.Tenant{}, wrapErr("tenants: get by slug", err)
	}
	return t, nil
}

// List returns all tenants ordered by name.
func (r *TenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, wrapErr("tenants: list", err)
	}
	defer rows.Close()
	var out []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, wrapErr("tenants: list scan", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("tenants: list rows", rows.Err())
}

// Create inserts a tenant. Used by the seeder only.
func (r *TenantRepo) Create(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (slug, name, address, admin_contact)
		VALUES ($1, $2, $3, $4)
		RETURNING `+tenantColumns,
		t.Slug, t.Name, toJSON(t.Address), t.AdminContact)
	created, err := scanTenant(row)
	if err != nil {
		return model.Tenant{}, wrapErr("tenants: create", err)
	}
	return created, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (model.Tenant, error) {
	var (
		t    model.Tenant
		addr []byte
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &addr, &t.AdminContact, &t.CreatedAt); err != nil {
		return model.Tenant{}, err
	}
	fromJSON(addr, &t.Address)
	return t, nil
}
