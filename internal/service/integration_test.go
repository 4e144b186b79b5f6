//go:build integration

package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/kiwari-pos/ordercore/internal/payment"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const serverKey = "SB-Mid-server-integration"

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(ctx, connStr, 32)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func createOutlet(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO outlets (name) VALUES ($1) RETURNING id`, "Toko "+uuid.NewString()[:8]).Scan(&id)
	if err != nil {
		t.Fatalf("insert outlet: %v", err)
	}
	return id
}

func createProduct(t *testing.T, pool *pgxpool.Pool, outletID uuid.UUID, name, price string, stock int32) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (outlet_id, name, price, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		outletID, name, price, stock).Scan(&id)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return id
}

func stockOf(t *testing.T, pool *pgxpool.Pool, productID uuid.UUID) int32 {
	t.Helper()
	stock, err := database.New(pool).GetProductStock(context.Background(), productID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	return stock
}

func newCheckout(pool *pgxpool.Pool) *service.CheckoutService {
	return service.NewCheckoutService(pool,
		func(db database.DBTX) service.CheckoutStore { return database.New(db) },
		database.New(pool),
	)
}

func cart(outletID, productID uuid.UUID, qty int32) service.CheckoutRequest {
	return service.CheckoutRequest{
		OutletID:      outletID,
		PaymentMethod: enum.PaymentMethodCash,
		Items:         []service.CheckoutItem{{ProductID: productID.String(), Quantity: qty}},
	}
}

// Twenty cashiers race for the last cup. Exactly one sells it.
func TestIntegration_LastUnitHasOneWinner(t *testing.T) {
	pool := setupPostgres(t)
	outletID := createOutlet(t, pool)
	productID := createProduct(t, pool, outletID, "Kopi Kenangan Mantan", "18000", 1)
	checkout := newCheckout(pool)

	const racers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := checkout.Checkout(context.Background(), cart(outletID, productID, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, service.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || rejected != racers-1 {
		t.Errorf("wins = %d, rejected = %d", wins, rejected)
	}
	if got := stockOf(t, pool, productID); got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
}

// Concurrent multi-line carts that overlap in opposite order neither
// deadlock nor oversell, and every order gets its own number.
func TestIntegration_ConcurrentCheckoutsKeepInvariants(t *testing.T) {
	pool := setupPostgres(t)
	outletID := createOutlet(t, pool)
	kopi := createProduct(t, pool, outletID, "Kopi Kenangan Mantan", "18000", 100)
	roti := createProduct(t, pool, outletID, "Roti O Original", "12000", 50)
	checkout := newCheckout(pool)

	const orders = 40
	numbers := make(chan string, orders)
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := service.CheckoutRequest{OutletID: outletID, PaymentMethod: enum.PaymentMethodCash}
			if i%2 == 0 {
				req.Items = []service.CheckoutItem{{ProductID: kopi.String(), Quantity: 2}, {ProductID: roti.String(), Quantity: 1}}
			} else {
				req.Items = []service.CheckoutItem{{ProductID: roti.String(), Quantity: 1}, {ProductID: kopi.String(), Quantity: 2}}
			}
			res, err := checkout.Checkout(context.Background(), req)
			if err != nil {
				t.Errorf("checkout %d: %v", i, err)
				return
			}
			numbers <- res.Order.OrderNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for n := range numbers {
		if seen[n] {
			t.Errorf("order number %s issued twice", n)
		}
		seen[n] = true
	}
	if len(seen) != orders {
		t.Errorf("orders = %d, want %d", len(seen), orders)
	}
	if got := stockOf(t, pool, kopi); got != 100-2*orders {
		t.Errorf("kopi stock = %d, want %d", got, 100-2*orders)
	}
	if got := stockOf(t, pool, roti); got != 50-orders {
		t.Errorf("roti stock = %d, want %d", got, 50-orders)
	}
}

// The same idempotency key submitted concurrently yields one order.
func TestIntegration_ConcurrentReplayCreatesOneOrder(t *testing.T) {
	pool := setupPostgres(t)
	outletID := createOutlet(t, pool)
	productID := createProduct(t, pool, outletID, "Mineral Water 600ml", "5000", 200)
	checkout := newCheckout(pool)

	key := uuid.NewString()
	const submits = 8
	ids := make(chan uuid.UUID, submits)
	var wg sync.WaitGroup
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := cart(outletID, productID, 3)
			req.ClientRef = key
			req.Source = enum.OrderSourceOfflineSync
			res, err := checkout.Checkout(context.Background(), req)
			if err != nil {
				t.Errorf("checkout: %v", err)
				return
			}
			ids <- res.Order.ID
		}()
	}
	wg.Wait()
	close(ids)

	distinct := map[uuid.UUID]bool{}
	for id := range ids {
		distinct[id] = true
	}
	if len(distinct) != 1 {
		t.Errorf("distinct orders = %d, want 1", len(distinct))
	}
	if got := stockOf(t, pool, productID); got != 197 {
		t.Errorf("stock = %d, want 197", got)
	}

	found, err := checkout.FindByClientRef(context.Background(), outletID, key)
	if err != nil {
		t.Fatalf("find by client ref: %v", err)
	}
	if !distinct[found.Order.ID] || len(found.Items) != 1 {
		t.Errorf("lookup returned %+v", found.Order)
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (p *capturePublisher) Publish(ctx context.Context, ev outbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// An order goes through checkout, payment and the kitchen; the outbox
// relay then delivers every committed change in order.
func TestIntegration_OrderLifecycleWithPaymentAndOutbox(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	outletID := createOutlet(t, pool)
	productID := createProduct(t, pool, outletID, "Roti O Original", "12000", 10)
	queries := database.New(pool)
	newQueries := func(db database.DBTX) *database.Queries { return database.New(db) }

	req := cart(outletID, productID, 2)
	req.PaymentMethod = enum.PaymentMethodQRIS
	res, err := newCheckout(pool).Checkout(ctx, req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	order := res.Order

	reference := order.OrderNumber + "-1"
	if _, err := queries.SetPaymentToken(ctx, database.SetPaymentTokenParams{
		PaymentToken:     pgtype.Text{String: "snap-token", Valid: true},
		PaymentReference: pgtype.Text{String: reference, Valid: true},
		ID:               order.ID,
		OutletID:         outletID,
	}); err != nil {
		t.Fatalf("set payment token: %v", err)
	}

	reconcile := service.NewReconcileService(pool,
		func(db database.DBTX) service.ReconcileStore { return newQueries(db) }, serverKey, nil)
	notify := func(status string) *service.ReconcileResult {
		t.Helper()
		n := payment.Notification{OrderID: reference, StatusCode: "200", GrossAmount: "24000.00", TransactionStatus: status}
		n.SignatureKey = payment.Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
		got, err := reconcile.Reconcile(ctx, n)
		if err != nil {
			t.Fatalf("reconcile %s: %v", status, err)
		}
		return got
	}
	if got := notify("settlement"); got.Outcome != service.OutcomeApplied || got.PaymentStatus != enum.PaymentStatusPaid {
		t.Errorf("settlement = %+v", got)
	}
	if got := notify("settlement"); got.Outcome != service.OutcomeDuplicate {
		t.Errorf("redelivery outcome = %s", got.Outcome)
	}
	if got := notify("expire"); got.Outcome != service.OutcomeIgnored || got.PaymentStatus != enum.PaymentStatusPaid {
		t.Errorf("late expire = %+v", got)
	}

	lifecycle := service.NewLifecycleService(pool,
		func(db database.DBTX) service.LifecycleStore { return newQueries(db) }, nil)
	for _, next := range []string{enum.OrderStatusInProgress, enum.OrderStatusReady, enum.OrderStatusCompleted} {
		if _, err := lifecycle.Transition(ctx, outletID, order.ID, next, uuid.New()); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if _, err := lifecycle.Transition(ctx, outletID, order.ID, enum.OrderStatusCancelled, uuid.New()); !errors.Is(err, service.ErrInvalidTransition) {
		t.Errorf("cancel after completion err = %v", err)
	}

	pub := &capturePublisher{}
	relay := outbox.NewRelay(pool, func(db database.DBTX) outbox.Store { return newQueries(db) }, time.Second, 100, pub)
	n, err := relay.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	want := []string{
		enum.EventOrderCreated,
		enum.EventOrderPaymentUpdated,
		enum.EventOrderStatusChanged,
		enum.EventOrderStatusChanged,
		enum.EventOrderStatusChanged,
	}
	if n != len(want) || len(pub.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(pub.events), len(want))
	}
	for i, ev := range pub.events {
		if ev.Type != want[i] || ev.AggregateID != order.ID {
			t.Errorf("event %d = %s for %s", i, ev.Type, ev.AggregateID)
		}
	}
	if n, _ := relay.ProcessBatch(ctx); n != 0 {
		t.Errorf("second batch delivered %d events again", n)
	}

	final, err := queries.GetOrder(ctx, database.GetOrderParams{ID: order.ID, OutletID: outletID})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if final.Status != enum.OrderStatusCompleted || final.PaymentStatus != enum.PaymentStatusPaid {
		t.Errorf("final order = %s / %s", final.Status, final.PaymentStatus)
	}
	if got := stockOf(t, pool, productID); got != 8 {
		t.Errorf("stock = %d, want 8", got)
	}
}
