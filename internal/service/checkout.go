package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	maxClientRefLen     = 64
	clientRefConstraint = "orders_client_ref_key"
	orderNumberFormat   = "ORD-%04d"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CheckoutStore defines the DB methods needed to turn a cart into an order.
// Satisfied by *database.Queries (and its WithTx variant).
type CheckoutStore interface {
	ListProductsForCheckout(ctx context.Context, arg database.ListProductsForCheckoutParams) ([]database.ListProductsForCheckoutRow, error)
	DecrementStock(ctx context.Context, arg database.DecrementStockParams) (int32, error)
	GetProductStock(ctx context.Context, id uuid.UUID) (int32, error)
	NextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOutboxEvent(ctx context.Context, arg database.CreateOutboxEventParams) (database.OutboxEvent, error)
	GetOrderByClientRef(ctx context.Context, clientRef pgtype.Text) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// NewCheckoutStore creates a CheckoutStore from a DBTX (pool or tx).
type NewCheckoutStore func(db database.DBTX) CheckoutStore

// CheckoutRequest is the input for a checkout. ClientRef is the caller's
// idempotency key; an empty ClientRef disables replay detection.
type CheckoutRequest struct {
	OutletID      uuid.UUID
	CreatedBy     uuid.UUID
	TableNumber   string
	CustomerName  string
	PaymentMethod string
	Source        string
	ClientRef     string
	Items         []CheckoutItem
}

// CheckoutItem is a single cart line.
type CheckoutItem struct {
	ProductID string
	Quantity  int32
}

// CheckoutResult is the committed order with its item snapshots.
// Replayed is true when the order already existed for the request's ClientRef.
type CheckoutResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Replayed bool
}

// CheckoutService converts carts into orders atomically.
type CheckoutService struct {
	pool     TxBeginner
	newStore NewCheckoutStore
	reads    CheckoutStore
}

// NewCheckoutService creates a new CheckoutService. reads serves lookups
// that run outside the checkout transaction.
func NewCheckoutService(pool TxBeginner, newStore NewCheckoutStore, reads CheckoutStore) *CheckoutService {
	return &CheckoutService{pool: pool, newStore: newStore, reads: reads}
}

// cartLine is a validated, merged cart line.
type cartLine struct {
	productID uuid.UUID
	quantity  int32
}

// pricedLine is a cart line priced from the catalog.
type pricedLine struct {
	cartLine
	name      string
	unitPrice decimal.Decimal
	subtotal  decimal.Decimal
}

// Checkout validates the cart, prices it from the catalog, decrements stock
// and records the order in a single transaction. Either everything commits or
// nothing does.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	lines, err := validateCheckout(&req)
	if err != nil {
		return nil, err
	}

	if req.ClientRef != "" {
		existing, err := s.findByClientRef(ctx, req.ClientRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	result, err := s.checkoutTx(ctx, req, lines)
	if err == nil {
		return result, nil
	}

	// A concurrent duplicate may have committed while this attempt was
	// blocked; hand back the winner instead of the loser's error.
	if req.ClientRef != "" && (isUniqueViolation(err, clientRefConstraint) || errors.Is(err, ErrInsufficientStock)) {
		existing, lookupErr := s.findByClientRef(ctx, req.ClientRef)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			log.Info().Str("client_ref", req.ClientRef).Str("order_number", existing.Order.OrderNumber).
				Msg("checkout: duplicate submission resolved to existing order")
			return existing, nil
		}
	}
	return nil, err
}

// FindByClientRef returns the order created with the given idempotency key.
func (s *CheckoutService) FindByClientRef(ctx context.Context, outletID uuid.UUID, clientRef string) (*CheckoutResult, error) {
	res, err := s.findByClientRef(ctx, clientRef)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Order.OutletID != outletID {
		return nil, ErrOrderNotFound
	}
	res.Replayed = false
	return res, nil
}

func (s *CheckoutService) findByClientRef(ctx context.Context, clientRef string) (*CheckoutResult, error) {
	order, err := s.reads.GetOrderByClientRef(ctx, textOrNull(clientRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by client ref: %w", err)
	}
	items, err := s.reads.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &CheckoutResult{Order: order, Items: items, Replayed: true}, nil
}

// checkoutTx executes the full checkout in a single transaction.
func (s *CheckoutService) checkoutTx(ctx context.Context, req CheckoutRequest, lines []cartLine) (*CheckoutResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Load catalog rows in one read ---
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.productID
	}
	products, err := store.ListProductsForCheckout(ctx, database.ListProductsForCheckoutParams{
		OutletID: req.OutletID,
		Ids:      ids,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	priced, total, err := priceLines(lines, products)
	if err != nil {
		return nil, err
	}

	// --- Decrement stock in ascending product id order ---
	for _, pl := range priced {
		_, err := store.DecrementStock(ctx, database.DecrementStockParams{
			ID:       pl.productID,
			Quantity: pl.quantity,
		})
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		available, serr := store.GetProductStock(ctx, pl.productID)
		if serr != nil {
			return nil, fmt.Errorf("get product stock: %w", serr)
		}
		return nil, &StockError{
			ProductID:   pl.productID,
			ProductName: pl.name,
			Requested:   pl.quantity,
			Available:   available,
		}
	}

	// --- Draw order number only after stock is secured ---
	seq, err := store.NextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	createdBy := pgtype.UUID{}
	if req.CreatedBy != uuid.Nil {
		createdBy = pgtype.UUID{Bytes: req.CreatedBy, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:   fmt.Sprintf(orderNumberFormat, seq),
		OutletID:      req.OutletID,
		TableNumber:   textOrNull(req.TableNumber),
		CustomerName:  textOrNull(req.CustomerName),
		PaymentMethod: req.PaymentMethod,
		ClientRef:     textOrNull(req.ClientRef),
		Source:        req.Source,
		TotalAmount:   DecimalToNumeric(total),
		CreatedBy:     createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(priced))
	for _, pl := range priced {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     order.ID,
			ProductID:   pl.productID,
			ProductName: pl.name,
			UnitPrice:   DecimalToNumeric(pl.unitPrice),
			Quantity:    pl.quantity,
			Subtotal:    DecimalToNumeric(pl.subtotal),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	payload, err := json.Marshal(orderCreatedPayload(order, priced, total))
	if err != nil {
		return nil, fmt.Errorf("marshal order.created: %w", err)
	}
	if _, err := store.CreateOutboxEvent(ctx, database.CreateOutboxEventParams{
		AggregateID: order.ID,
		OutletID:    order.OutletID,
		EventType:   enum.EventOrderCreated,
		Payload:     payload,
	}); err != nil {
		return nil, fmt.Errorf("create outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CheckoutResult{Order: order, Items: items}, nil
}

// --- Helpers ---

// validateCheckout checks the whole request and fills defaults. Duplicate
// product lines are merged; the result is sorted by product id, which is
// also the lock order for stock decrements.
func validateCheckout(req *CheckoutRequest) ([]cartLine, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !enum.IsPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	if req.Source == "" {
		req.Source = enum.OrderSourcePOS
	}
	switch req.Source {
	case enum.OrderSourcePOS, enum.OrderSourceSelfOrder, enum.OrderSourceOfflineSync:
	default:
		return nil, ErrInvalidSource
	}
	if len(req.ClientRef) > maxClientRefLen {
		return nil, ErrClientRefTooLong
	}

	merged := make(map[uuid.UUID]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}
		merged[pid] += int64(item.Quantity)
		if merged[pid] > int64(^uint32(0)>>1) {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
	}

	lines := make([]cartLine, 0, len(merged))
	for pid, qty := range merged {
		lines = append(lines, cartLine{productID: pid, quantity: int32(qty)})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].productID.String() < lines[j].productID.String()
	})
	return lines, nil
}

// priceLines prices each line from the catalog and performs the advisory
// stock check. The conditional decrement remains the authority.
func priceLines(lines []cartLine, products []database.ListProductsForCheckoutRow) ([]pricedLine, decimal.Decimal, error) {
	byID := make(map[uuid.UUID]database.ListProductsForCheckoutRow, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var missing []uuid.UUID
	for _, l := range lines {
		if _, ok := byID[l.productID]; !ok {
			missing = append(missing, l.productID)
		}
	}
	if len(missing) > 0 {
		return nil, decimal.Zero, &MissingProductsError{ProductIDs: missing}
	}

	total := decimal.Zero
	priced := make([]pricedLine, 0, len(lines))
	for _, l := range lines {
		p := byID[l.productID]
		if p.Stock < l.quantity {
			return nil, decimal.Zero, &StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.quantity,
				Available:   p.Stock,
			}
		}
		unit := NumericToDecimal(p.Price)
		subtotal := unit.Mul(decimal.NewFromInt32(l.quantity))
		total = total.Add(subtotal)
		priced = append(priced, pricedLine{
			cartLine:  l,
			name:      p.Name,
			unitPrice: unit,
			subtotal:  subtotal,
		})
	}
	return priced, total, nil
}

func orderCreatedPayload(order database.Order, lines []pricedLine, total decimal.Decimal) outbox.OrderCreated {
	items := make([]outbox.OrderCreatedItem, len(lines))
	for i, l := range lines {
		items[i] = outbox.OrderCreatedItem{
			ProductID:   l.productID,
			ProductName: l.name,
			Quantity:    l.quantity,
			UnitPrice:   l.unitPrice.StringFixed(2),
			Subtotal:    l.subtotal.StringFixed(2),
		}
	}
	return outbox.OrderCreated{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OutletID:      order.OutletID,
		TableNumber:   order.TableNumber.String,
		CustomerName:  order.CustomerName.String,
		PaymentMethod: order.PaymentMethod,
		Source:        order.Source,
		TotalAmount:   total.StringFixed(2),
		Items:         items,
		CreatedAt:     eventTime(order.CreatedAt),
	}
}
