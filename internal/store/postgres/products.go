package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

// ProductRepo implements store.ProductStore.
type ProductRepo struct {
	pool *pgxpool.Pool
}

const productColumns = `id::text, tenant_slug, coalesce(farmer_id::text, ''), name,
	coalesce(description, ''), coalesce(category, ''), price_per_unit,
	coalesce(unit, ''), stock, photos, created_at, updated_at`

// Create inserts a product.
func (r *ProductRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (tenant_slug, farmer_id, name, description, category,
			price_per_unit, unit, stock, photos)
		VALUES ($1, nullif($2, '')::uuid, $3, nullif($4, ''), nullif($5, ''), $6, nullif($7, ''), $8, $9)
		RETURNING `+productColumns,
		p.TenantSlug, p.FarmerID, p.Name, p.Description, p.Category,
		p.PricePerUnit, p.Unit, p.Stock, photosJSON(p.Photos))
	created, err := scanProduct(row)
	if err != nil {
		return model.Product{}, wrapErr("products: create", err)
	}
	return created, nil
}

// GetByID returns a product by id.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1::uuid`, id)
	p, err := scanProduct(row)
	if err != nil {
		return model.Product{}, wrapErr("products: get by id", err)
	}
	return p, nil
}

// GetByIDs returns the products whose ids are in the list.
func (r *ProductRepo) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("products: get by ids", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// List returns products newest first, filtered by tenant and/or farmer.
func (r *ProductRepo) List(ctx context.Context, f store.ProductFilter) ([]model.Product, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR tenant_slug = $1)
		  AND ($2 = '' OR farmer_id::text = $2)
		ORDER BY created_at DESC
		LIMIT $3`, f.TenantSlug, f.FarmerID, limit)
	if err != nil {
		return nil, wrapErr("products: list", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// Update rewrites the mutable fields of a product.
func (r *ProductRepo) Update(ctx context.Context, p model.Product) (model.Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products SET name = $2, description = nullif($3, ''), category = nullif($4, ''),
			price_per_unit = $5, unit = nullif($6, ''), stock = $7, photos = $8, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Category, p.PricePerUnit, p.Unit, p.Stock, photosJSON(p.Photos))
	updated, err := scanProduct(row)
	if err != nil {
		return model.Product{}, wrapErr("products: update", err)
	}
	return updated, nil
}

// Delete removes a product record.
func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1::uuid`, id)
	if err != nil {
		return wrapErr("products: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("products: delete", errNoRows)
	}
	return nil
}

// DecrementStock performs the conditional atomic decrement: one statement
// that both checks stock >= qty within the tenant and applies the decrement.
// Two concurrent calls for the last unit cannot both succeed.
func (r *ProductRepo) DecrementStock(ctx context.Context, id, tenantSlug string, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET stock = stock - $3, updated_at = now()
		WHERE id = $1::uuid AND tenant_slug = $2 AND stock >= $3`,
		id, tenantSlug, qty)
	if err != nil {
		return false, wrapErr("products: decrement stock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RestoreStock applies the compensating increment.
func (r *ProductRepo) RestoreStock(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1::uuid`, id, qty)
	if err != nil {
		return wrapErr("products: restore stock", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("products: restore stock", errNoRows)
	}
	return nil
}

// ListWithPhotosBefore returns products carrying at least one photo older
// than cutoff.
func (r *ProductRepo) ListWithPhotosBefore(ctx context.Context, tenantSlug string, cutoff time.Time) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR tenant_slug = $1)
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(photos) ph
			WHERE (ph->>'timestamp')::timestamptz < $2
		  )`, tenantSlug, cutoff)
	if err != nil {
		return nil, wrapErr("products: list stale photos", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func photosJSON(photos []model.Photo) []byte {
	if photos == nil {
		photos = []model.Photo{}
	}
	return toJSON(photos)
}

func collectProducts(rows interface {
	rowScanner
	Next() bool
	Close()
	Err() error
}) ([]model.Product, error) {
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, wrapErr("products: scan", err)
		}
		out = append(out, p)
	}
	return out, wrapErr("products: rows", rows.Err())
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p      model.Product
		photos []byte
	)
	if err := row.Scan(&p.ID, &p.TenantSlug, &p.FarmerID, &p.Name,
		&p.Description, &p.Category, &p.PricePerUnit,
		&p.Unit, &p.Stock, &photos, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Product{}, err
	}
	p.Photos = []model.Photo{}
	fromJSON(photos, &p.Photos)
	return p, nil
}
