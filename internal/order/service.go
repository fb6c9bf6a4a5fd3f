// Package order implements order placement and fulfillment. Placement runs a
// sequential reservation pass of conditional atomic stock decrements with a
// best-effort compensation loop; no multi-row transaction is assumed.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/events"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/obs"
	"github.com/organoz/village-market/internal/store"
)

// Service coordinates order placement and status transitions.
type Service struct {
	tenants  store.TenantStore
	users    store.UserStore
	products store.ProductStore
	orders   store.OrderStore
	events   *events.Bus
	logger   zerolog.Logger
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Tenants  store.TenantStore
	Users    store.UserStore
	Products store.ProductStore
	Orders   store.OrderStore
	Events   *events.Bus
	Logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		tenants:  cfg.Tenants,
		users:    cfg.Users,
		products: cfg.Products,
		orders:   cfg.Orders,
		events:   cfg.Events,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PlaceInput carries the order placement request.
type PlaceInput struct {
	CustomerID string
	Items      []PlaceItem
	Address    model.Address
	Payment    model.Payment
}

// PlaceItem is one requested (product, quantity) pair.
type PlaceItem struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

// reservation tracks one successful decrement for possible compensation.
type reservation struct {
	productID string
	qty       int
}

// Place validates, reserves stock item by item, and creates the order only
// after every reservation succeeded. On a failed reservation every earlier
// decrement is compensated best-effort, then the whole order fails with no
// record created.
//
// A crash between the last decrement and the order insert leaves stock
// reserved with no order; that window is accepted and logged, not hidden.
func (s *Service) Place(ctx context.Context, tenantSlug string, in PlaceInput) (model.Order, error) {
	order, err := s.place(ctx, tenantSlug, in)
	result := "ok"
	if err != nil {
		result = placeResultLabel(err)
	}
	if obs.OrdersPlacedTotal != nil {
		obs.OrdersPlacedTotal.WithLabelValues(result).Inc()
	}
	return order, err
}

func (s *Service) place(ctx context.Context, tenantSlug string, in PlaceInput) (model.Order, error) {
	// Precondition 1: tenant present and resolvable.
	tenantSlug = strings.TrimSpace(tenantSlug)
	if tenantSlug == "" {
		return model.Order{}, common.NewAppError(common.CodeTenantRequired, "tenant is required", http.StatusBadRequest, nil)
	}
	if _, err := s.tenants.GetBySlug(ctx, tenantSlug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Order{}, common.NewAppError(common.CodeInvalidTenant, "tenant not found: "+tenantSlug, http.StatusBadRequest, nil)
		}
		return model.Order{}, fmt.Errorf("lookup tenant: %w", err)
	}

	// Precondition 2: customer exists and belongs to the tenant.
	if strings.TrimSpace(in.CustomerID) == "" {
		return model.Order{}, common.ValidationError("customerId is required")
	}
	customer, err := s.users.GetByID(ctx, in.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Order{}, common.ValidationError("customer not found")
		}
		return model.Order{}, fmt.Errorf("lookup customer: %w", err)
	}
	if customer.TenantSlug != tenantSlug {
		return model.Order{}, common.ForbiddenError(common.CodeTenantMismatch, "customer belongs to a different village")
	}

	// Precondition 3: non-empty item list with positive quantities.
	if len(in.Items) == 0 {
		return model.Order{}, common.ValidationError("items must not be empty")
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return model.Order{}, common.ValidationError("items[].productId is required")
		}
		if item.Qty <= 0 {
			return model.Order{}, common.ValidationError("items[].qty must be positive")
		}
	}

	// Preconditions 4 and 5: every product exists and belongs to the tenant.
	// Prices and names are captured here, at read time, and never re-read.
	lines := make([]model.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.Order{}, common.NotFoundError("product not found: " + item.ProductID)
			}
			return model.Order{}, fmt.Errorf("lookup product %s: %w", item.ProductID, err)
		}
		if product.TenantSlug != tenantSlug {
			return model.Order{}, common.NewAppError(common.CodeTenantMismatch, "product not in this village: "+item.ProductID, http.StatusBadRequest, nil)
		}
		lines = append(lines, model.OrderItem{
			ProductID:    product.ID,
			Name:         product.Name,
			PricePerUnit: product.PricePerUnit,
			Qty:          item.Qty,
			TenantSlug:   product.TenantSlug,
			FarmerID:     product.FarmerID,
			Status:       model.OrderStatusPlaced,
		})
	}

	// Reservation pass: sequential so compensation bookkeeping stays simple.
	var reserved []reservation
	for _, line := range lines {
		ok, err := s.products.DecrementStock(ctx, line.ProductID, tenantSlug, line.Qty)
		if err != nil {
			s.compensate(ctx, reserved)
			return model.Order{}, fmt.Errorf("reserve stock for %s: %w", line.ProductID, err)
		}
		if !ok {
			s.compensate(ctx, reserved)
			return model.Order{}, common.NewAppError(common.CodeInsufficientStock,
				"insufficient stock for product "+line.ProductID, http.StatusBadRequest, nil)
		}
		reserved = append(reserved, reservation{productID: line.ProductID, qty: line.Qty})
	}

	var total float64
	for _, line := range lines {
		total += float64(line.Qty) * line.PricePerUnit
	}

	now := s.now()
	created, err := s.orders.Create(ctx, model.Order{
		TenantSlug:    tenantSlug,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		Items:         lines,
		Total:         total,
		Address:       in.Address,
		Payment:       in.Payment,
		Status:        model.OrderStatusPlaced,
		History: []model.HistoryEntry{
			{Status: model.OrderStatusPlaced, At: now, By: customer.ID},
		},
	})
	if err != nil {
		// Reservations already happened; the stock is decremented with no
		// order to show for it until reconciled.
		s.logger.Error().Err(err).Str("tenant", tenantSlug).Str("customer_id", customer.ID).
			Msg("order insert failed after successful reservation")
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.emit(ctx, events.TopicOrderPlaced, created.ID, map[string]any{
		"orderId":     created.ID,
		"villageSlug": created.TenantSlug,
		"email":       customer.Email,
		"total":       created.Total,
	})
	return created, nil
}

// emit publishes a domain event best-effort. The order write is the source of
// truth; notification failures are logged and never propagated.
func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID).
			Msg("event notification failed")
	}
}

// compensate restores stock for every completed reservation, logging and
// continuing when one restore fails. It never aborts the rollback loop.
func (s *Service) compensate(ctx context.Context, reserved []reservation) {
	for _, r := range reserved {
		if obs.StockCompensationsTotal != nil {
			obs.StockCompensationsTotal.Inc()
		}
		if err := s.products.RestoreStock(ctx, r.productID, r.qty); err != nil {
			if obs.CompensationFailuresTotal != nil {
				obs.CompensationFailuresTotal.Inc()
			}
			s.logger.Error().Err(err).Str("product_id", r.productID).Int("qty", r.qty).
				Msg("stock compensation failed, stock left under-credited")
		}
	}
}

// ListFilter narrows List results. FarmerID matches orders containing at
// least one of the farmer's items.
type ListFilter struct {
	TenantSlug string
	CustomerID string
	FarmerID   string
}

// List returns matching orders, enriching customer name/phone best-effort for
// rows that predate the denormalization.
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Order, error) {
	orders, err := s.orders.List(ctx, store.OrderFilter{
		TenantSlug: f.TenantSlug,
		CustomerID: f.CustomerID,
		FarmerID:   f.FarmerID,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var missing []string
	seen := map[string]bool{}
	for _, o := range orders {
		if o.CustomerName == "" && o.CustomerID != "" && !seen[o.CustomerID] {
			seen[o.CustomerID] = true
			missing = append(missing, o.CustomerID)
		}
	}
	if len(missing) > 0 {
		users, err := s.users.GetByIDs(ctx, missing)
		if err != nil {
			// Enrichment is best-effort; the list still goes out.
			s.logger.Warn().Err(err).Msg("customer enrichment lookup failed")
		} else {
			byID := make(map[string]model.User, len(users))
			for _, u := range users {
				byID[u.ID] = u
			}
			for i := range orders {
				if orders[i].CustomerName == "" {
					if u, ok := byID[orders[i].CustomerID]; ok {
						orders[i].CustomerName = u.Name
						orders[i].CustomerPhone = u.Phone
					}
				}
			}
		}
	}
	return orders, nil
}

// Get returns one order. A tenant slug in the request context must match the
// order's slug or the request is rejected as a mismatch, not hidden as 404.
func (s *Service) Get(ctx context.Context, tenantSlug, id string) (model.Order, error) {
	if strings.TrimSpace(id) == "" {
		return model.Order{}, common.ValidationError("order id is required")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Order{}, common.NotFoundError("order not found")
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	if tenantSlug != "" && o.TenantSlug != tenantSlug {
		return model.Order{}, common.ForbiddenError(common.CodeTenantMismatch, "order belongs to a different village")
	}
	return o, nil
}

// UpdateStatus sets the order-level status and appends one history entry. The
// status string is free-form at this layer.
func (s *Service) UpdateStatus(ctx context.Context, tenantSlug, id, status, actor string) (model.Order, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return model.Order{}, common.ValidationError("status is required")
	}
	o, err := s.Get(ctx, tenantSlug, id)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = status
	o.History = append(o.History, model.HistoryEntry{Status: status, At: s.now(), By: actor})
	updated, err := s.orders.Update(ctx, o)
	if err != nil {
		return model.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// UpdateItemStatus sets one item's status, appends an item-tagged history
// entry, and recomputes completion: once every item is terminal the order
// moves to completed exactly once, with a history entry by "system".
func (s *Service) UpdateItemStatus(ctx context.Context, tenantSlug, id, productID, status, note, actor string) (model.Order, error) {
	if !model.ValidItemStatus(status) {
		return model.Order{}, common.ValidationError("invalid item status: " + status)
	}
	o, err := s.Get(ctx, tenantSlug, id)
	if err != nil {
		return model.Order{}, err
	}

	idx := -1
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Order{}, common.NotFoundError("order item not found: " + productID)
	}

	prev := o.Items[idx].Status
	o.Items[idx].Status = status
	o.Items[idx].StatusNote = note
	now := s.now()
	entry := model.HistoryEntry{
		Status: fmt.Sprintf("item:%s:%s", productID, status),
		At:     now,
		By:     actor,
	}
	if prev != "" {
		entry.Note = "was " + prev
	}
	o.History = append(o.History, entry)

	// Aggregation is recomputed fresh on every update, never cached.
	completed := false
	if o.Status != model.OrderStatusCompleted && allItemsTerminal(o.Items) {
		o.Status = model.OrderStatusCompleted
		o.History = append(o.History, model.HistoryEntry{
			Status: model.OrderStatusCompleted,
			At:     now,
			By:     "system",
		})
		completed = true
	}

	updated, err := s.orders.Update(ctx, o)
	if err != nil {
		return model.Order{}, fmt.Errorf("update item status: %w", err)
	}
	if completed {
		payload := map[string]any{
			"orderId":     updated.ID,
			"villageSlug": updated.TenantSlug,
		}
		if customer, err := s.users.GetByID(ctx, updated.CustomerID); err == nil {
			payload["email"] = customer.Email
		}
		s.emit(ctx, events.TopicOrderCompleted, updated.ID, payload)
	}
	return updated, nil
}

func allItemsTerminal(items []model.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !model.TerminalItemStatus(item.Status) {
			return false
		}
	}
	return true
}

func placeResultLabel(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeInsufficientStock:
			return "insufficient_stock"
		case common.CodeTenantMismatch:
			return "tenant_mismatch"
		case common.CodeValidation, common.CodeTenantRequired, common.CodeInvalidTenant:
			return "invalid"
		case common.CodeNotFound:
			return "not_found"
		}
	}
	return "error"
}
