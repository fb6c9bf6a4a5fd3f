package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

// ApplicationRepo implements store.ApplicationStore.
type ApplicationRepo struct {
	pool *pgxpool.Pool
}

const applicationColumns = `id::text, name, phone, coalesce(email, ''),
	coalesce(village_slug, ''), address, farm_profile, attachments, status,
	coalesce(admin_comment, ''), created_at, updated_at`

// Create inserts a farmer application in pending state.
func (r *ApplicationRepo) Create(ctx context.Context, a model.FarmerApplication) (model.FarmerApplication, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO farmer_applications (name, phone, email, village_slug,
			address, farm_profile, attachments, status)
		VALUES ($1, $2, nullif($3, ''), nullif($4, ''), $5, $6, $7, $8)
		RETURNING `+applicationColumns,
		a.Name, a.Phone, a.Email, a.VillageSlug,
		toJSON(a.Address), toJSON(a.FarmProfile), attachmentsJSON(a.Attachments), a.Status)
	created, err := scanApplication(row)
	if err != nil {
		return model.FarmerApplication{}, wrapErr("applications: create", err)
	}
	return created, nil
}

// GetByID returns an application by id.
func (r *ApplicationRepo) GetByID(ctx context.Context, id string) (model.FarmerApplication, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM farmer_applications WHERE id = $1::uuid`, id)
	a, err := scanApplication(row)
	if err != nil {
		return model.FarmerApplication{}, wrapErr("applications: get by id", err)
	}
	return a, nil
}

// List returns applications newest first, optionally filtered by status and
// village.
func (r *ApplicationRepo) List(ctx context.Context, f store.ApplicationFilter) ([]model.FarmerApplication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+` FROM farmer_applications
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR village_slug = $2)
		ORDER BY created_at DESC`,
		f.Status, f.VillageSlug)
	if err != nil {
		return nil, wrapErr("applications: list", err)
	}
	defer rows.Close()
	var out []model.FarmerApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, wrapErr("applications: list scan", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("applications: list rows", rows.Err())
}

// Update persists the decision fields of an application.
func (r *ApplicationRepo) Update(ctx context.Context, a model.FarmerApplication) (model.FarmerApplication, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE farmer_applications SET status = $2, admin_comment = nullif($3, ''), updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+applicationColumns,
		a.ID, a.Status, a.AdminComment)
	updated, err := scanApplication(row)
	if err != nil {
		return model.FarmerApplication{}, wrapErr("applications: update", err)
	}
	return updated, nil
}

func attachmentsJSON(atts []string) []byte {
	if atts == nil {
		atts = []string{}
	}
	return toJSON(atts)
}

func scanApplication(row rowScanner) (model.FarmerApplication, error) {
	var (
		a                   model.FarmerApplication
		addr, profile, atts []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Phone, &a.Email,
		&a.VillageSlug, &addr, &profile, &atts, &a.Status,
		&a.AdminComment, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.FarmerApplication{}, err
	}
	a.Attachments = []string{}
	fromJSON(addr, &a.Address)
	fromJSON(profile, &a.FarmProfile)
	fromJSON(atts, &a.Attachments)
	return a, nil
}
