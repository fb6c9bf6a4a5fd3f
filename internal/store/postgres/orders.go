package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

// OrderRepo implements store.OrderStore.
type OrderRepo struct {
	pool *pgxpool.Pool
}

const orderColumns = `id::text, tenant_slug, customer_id::text, customer_name,
	coalesce(customer_phone, ''), items, total, address, payment, status,
	history, created_at, updated_at`

// Create inserts an order with its items, history, address, and payment as
// JSONB documents.
func (r *OrderRepo) Create(ctx context.Context, o model.Order) (model.Order, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO orders (tenant_slug, customer_id, customer_name, customer_phone,
			items, total, address, payment, status, history)
		VALUES ($1, $2::uuid, $3, nullif($4, ''), $5, $6, $7, $8, $9, $10)
		RETURNING `+orderColumns,
		o.TenantSlug, o.CustomerID, o.CustomerName, o.CustomerPhone,
		itemsJSON(o.Items), o.Total, toJSON(o.Address), toJSON(o.Payment),
		o.Status, historyJSON(o.History))
	created, err := scanOrder(row)
	if err != nil {
		return model.Order{}, wrapErr("orders: create", err)
	}
	return created, nil
}

// GetByID returns an order by id.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1::uuid`, id)
	o, err := scanOrder(row)
	if err != nil {
		return model.Order{}, wrapErr("orders: get by id", err)
	}
	return o, nil
}

// List returns orders newest first. The farmer filter matches orders that
// contain at least one item owned by the farmer.
func (r *OrderRepo) List(ctx context.Context, f store.OrderFilter) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR tenant_slug = $1)
		  AND ($2 = '' OR customer_id::text = $2)
		  AND ($3 = '' OR EXISTS (
			SELECT 1 FROM jsonb_array_elements(items) it
			WHERE it->>'farmerId' = $3
		  ))
		ORDER BY created_at DESC`,
		f.TenantSlug, f.CustomerID, f.FarmerID)
	if err != nil {
		return nil, wrapErr("orders: list", err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, wrapErr("orders: list scan", err)
		}
		out = append(out, o)
	}
	return out, wrapErr("orders: list rows", rows.Err())
}

// Update persists the mutable parts of an order: status, items, history.
func (r *OrderRepo) Update(ctx context.Context, o model.Order) (model.Order, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders SET status = $2, items = $3, history = $4, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+orderColumns,
		o.ID, o.Status, itemsJSON(o.Items), historyJSON(o.History))
	updated, err := scanOrder(row)
	if err != nil {
		return model.Order{}, wrapErr("orders: update", err)
	}
	return updated, nil
}

func itemsJSON(items []model.OrderItem) []byte {
	if items == nil {
		items = []model.OrderItem{}
	}
	return toJSON(items)
}

func historyJSON(history []model.HistoryEntry) []byte {
	if history == nil {
		history = []model.HistoryEntry{}
	}
	return toJSON(history)
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o                      model.Order
		items, addr, pay, hist []byte
	)
	if err := row.Scan(&o.ID, &o.TenantSlug, &o.CustomerID, &o.CustomerName,
		&o.CustomerPhone, &items, &o.Total, &addr, &pay, &o.Status,
		&hist, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return model.Order{}, err
	}
	o.Items = []model.OrderItem{}
	o.History = []model.HistoryEntry{}
	fromJSON(items, &o.Items)
	fromJSON(addr, &o.Address)
	fromJSON(pay, &o.Payment)
	fromJSON(hist, &o.History)
	return o, nil
}
