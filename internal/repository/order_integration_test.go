//go:build integration

package repository_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wildcart/storefront/internal/domain/order"
	"github.com/wildcart/storefront/internal/domain/payment"
	"github.com/wildcart/storefront/internal/domain/product"
	"github.com/wildcart/storefront/internal/repository"
)

func buildOrder(ownerEmail, addressID string, items ...order.Item) *order.Order {
	id := uuid.New().String()
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total())
	}
	return &order.Order{
		ID:          id,
		OwnerEmail:  ownerEmail,
		Status:      order.StatusPending,
		TotalAmount: total,
		OrderDate:   time.Now().UTC().Truncate(time.Microsecond),
		AddressID:   addressID,
		Items:       items,
		Payment: payment.Payment{
			ID:      uuid.New().String(),
			OrderID: id,
			Method:  payment.MethodCard,
		},
	}
}

func item(productID, name string, quantity int, unitPrice string) order.Item {
	return order.Item{
		ID:          uuid.New().String(),
		ProductID:   productID,
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   decimal.RequireFromString(unitPrice),
	}
}

func TestOrderRepository_CreateReservesStockAndRoundTrips(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	gadget := seedProduct(t, "Gadget", "25.00", 3)
	addr := seedAddress(t, "alice@example.com")

	o := buildOrder("alice@example.com", addr,
		item(widget, "Widget", 2, "10.00"),
		item(gadget, "Gadget", 1, "25.00"),
	)
	require.NoError(t, repo.Create(ctx, o))

	assert.Equal(t, 3, productStock(t, widget))
	assert.Equal(t, 2, productStock(t, gadget))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, "alice@example.com", got.OwnerEmail)
	assert.True(t, decimal.RequireFromString("45.00").Equal(got.TotalAmount), "total %s", got.TotalAmount)
	require.Len(t, got.Items, 2)
	assert.Equal(t, payment.MethodCard, got.Payment.Method)
	assert.Empty(t, got.Payment.ExternalPaymentID)
	assert.Nil(t, got.ShippedDate)
	assert.Empty(t, got.TrackingNumber)
}

func TestOrderRepository_CreateInsufficientStockRollsBackEverything(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	gadget := seedProduct(t, "Gadget", "25.00", 0)
	addr := seedAddress(t, "alice@example.com")

	o := buildOrder("alice@example.com", addr,
		item(widget, "Widget", 2, "10.00"),
		item(gadget, "Gadget", 1, "25.00"),
	)
	err := repo.Create(ctx, o)

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, gadget, stockErr.ProductID)

	// The widget decrement ran first inside the transaction and must have
	// been rolled back with the rest.
	assert.Equal(t, 5, productStock(t, widget))
	assert.Zero(t, countRows(t, "orders"))
	assert.Zero(t, countRows(t, "order_items"))
	assert.Zero(t, countRows(t, "payments"))
}

func TestOrderRepository_ConcurrentCreatesNeverOversell(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	addr := seedAddress(t, "alice@example.com")

	const attempts = 8
	var ok, exhausted atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			o := buildOrder("alice@example.com", addr, item(widget, "Widget", 2, "10.00"))
			err := repo.Create(ctx, o)
			if err == nil {
				ok.Add(1)
				return nil
			}
			var stockErr *product.InsufficientStockError
			if !assert.ErrorAs(t, err, &stockErr) {
				return err
			}
			exhausted.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Five units cover exactly two orders of two.
	assert.Equal(t, int32(2), ok.Load())
	assert.Equal(t, int32(attempts-2), exhausted.Load())
	assert.Equal(t, 1, productStock(t, widget))
	assert.Equal(t, 2, countRows(t, "orders"))
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	resetDB(t)
	repo := repository.NewOrderRepository(pool)

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_UpdateWritesBackOrderAndPayment(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr, item(widget, "Widget", 1, "10.00"))
	require.NoError(t, repo.Create(ctx, o))

	shipped := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := repo.Update(ctx, o.ID, func(o *order.Order) error {
		o.Status = order.StatusConfirmed
		o.Payment.ExternalPaymentID = "pi_123"
		o.Payment.ExternalStatus = "succeeded"
		o.ShippedDate = &shipped
		o.TrackingNumber = "TRK1234567000042"
		o.Carrier = "DHL"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, updated.Status)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, "pi_123", got.Payment.ExternalPaymentID)
	assert.Equal(t, "succeeded", got.Payment.ExternalStatus)
	assert.Equal(t, "TRK1234567000042", got.TrackingNumber)
	assert.Equal(t, "DHL", got.Carrier)
	require.NotNil(t, got.ShippedDate)
	assert.True(t, shipped.Equal(*got.ShippedDate))
}

func TestOrderRepository_UpdateMutateErrorLeavesRowUnchanged(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr, item(widget, "Widget", 1, "10.00"))
	require.NoError(t, repo.Create(ctx, o))

	_, err := repo.Update(ctx, o.ID, func(o *order.Order) error {
		o.Status = order.StatusConfirmed
		return &order.InvalidTransitionError{From: o.Status, To: order.StatusShipped}
	})
	var tErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &tErr)

	got, gerr := repo.GetByID(ctx, o.ID)
	require.NoError(t, gerr)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestOrderRepository_UpdateSerializesConcurrentMutations(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 20)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr, item(widget, "Widget", 1, "10.00"))
	require.NoError(t, repo.Create(ctx, o))

	// Each goroutine confirms the order only when it still observes
	// PENDING. With the row lock the mutations run one after another, so
	// exactly one goroutine can observe the PENDING state.
	var observedPending atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := repo.Update(ctx, o.ID, func(o *order.Order) error {
				if o.Status == order.StatusPending {
					observedPending.Add(1)
					o.Status = order.StatusConfirmed
				}
				return nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), observedPending.Load())

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestOrderRepository_DeleteRestocksAndCascades(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	gadget := seedProduct(t, "Gadget", "25.00", 3)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr,
		item(widget, "Widget", 2, "10.00"),
		item(gadget, "Gadget", 1, "25.00"),
	)
	require.NoError(t, repo.Create(ctx, o))
	require.Equal(t, 3, productStock(t, widget))

	require.NoError(t, repo.Delete(ctx, o.ID))

	assert.Equal(t, 5, productStock(t, widget))
	assert.Equal(t, 3, productStock(t, gadget))
	assert.Zero(t, countRows(t, "orders"))
	assert.Zero(t, countRows(t, "order_items"))
	assert.Zero(t, countRows(t, "payments"))

	_, err := repo.GetByID(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_DeleteRejectsConfirmedOrder(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 5)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr, item(widget, "Widget", 2, "10.00"))
	require.NoError(t, repo.Create(ctx, o))

	_, err := repo.Update(ctx, o.ID, func(o *order.Order) error {
		o.Status = order.StatusConfirmed
		return nil
	})
	require.NoError(t, err)

	err = repo.Delete(ctx, o.ID)

	var tErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, order.StatusConfirmed, tErr.From)
	assert.Equal(t, "delete", tErr.Op)
	assert.Equal(t, 3, productStock(t, widget))
	assert.Equal(t, 1, countRows(t, "orders"))
}

func TestOrderRepository_DeleteNotFound(t *testing.T) {
	resetDB(t)
	repo := repository.NewOrderRepository(pool)

	err := repo.Delete(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_ListSortsAndPages(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 100)
	addr := seedAddress(t, "alice@example.com")
	otherAddr := seedAddress(t, "bob@example.com")

	quantities := []int{1, 3, 2}
	for _, q := range quantities {
		o := buildOrder("alice@example.com", addr, item(widget, "Widget", q, "10.00"))
		require.NoError(t, repo.Create(ctx, o))
	}
	bob := buildOrder("bob@example.com", otherAddr, item(widget, "Widget", 1, "10.00"))
	require.NoError(t, repo.Create(ctx, bob))

	orders, total, err := repo.List(ctx, "alice@example.com",
		order.Page{Number: 0, Size: 2, SortBy: "totalAmount", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orders, 2)
	assert.True(t, decimal.RequireFromString("30.00").Equal(orders[0].TotalAmount))
	assert.True(t, decimal.RequireFromString("20.00").Equal(orders[1].TotalAmount))

	orders, total, err = repo.List(ctx, "alice@example.com",
		order.Page{Number: 1, Size: 2, SortBy: "totalAmount", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orders, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(orders[0].TotalAmount))
}

func TestOrderRepository_ListNormalizesZeroPage(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	widget := seedProduct(t, "Widget", "10.00", 10)
	addr := seedAddress(t, "alice@example.com")
	o := buildOrder("alice@example.com", addr, item(widget, "Widget", 1, "10.00"))
	require.NoError(t, repo.Create(ctx, o))

	// A zero-value page must not translate into LIMIT 0.
	orders, total, err := repo.List(ctx, "alice@example.com", order.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
}

func TestSupportingRepositories(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	widget := seedProduct(t, "Widget", "10.00", 5)
	gadget := seedProduct(t, "Gadget", "25.00", 3)
	addr := seedAddress(t, "alice@example.com")
	seedCartLine(t, "alice@example.com", widget, 2)
	seedCartLine(t, "alice@example.com", gadget, 1)

	products := repository.NewProductRepository(pool)
	got, err := products.GetByIDs(ctx, []string{widget, gadget})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	addresses := repository.NewAddressRepository(pool)
	a, err := addresses.GetByID(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.OwnerEmail)

	carts := repository.NewCartRepository(pool)
	lines, err := carts.Lines(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	require.NoError(t, carts.Clear(ctx, "alice@example.com"))
	lines, err = carts.Lines(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, lines)
}
