//go:build integration

package repository_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wildcart/storefront/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	pool, err = repository.NewPool(ctx, connStr)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

// resetDB truncates all tables so tests start from a clean slate.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE payments, order_items, orders, cart_items, addresses, products CASCADE`)
	require.NoError(t, err)
}

func seedProduct(t *testing.T, name string, price string, stock int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)`,
		id, name, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	return id
}

func seedAddress(t *testing.T, ownerEmail string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO addresses (id, owner_email, street, city, state, country, postal_code)
		 VALUES ($1, $2, 'Rua A 1', 'Lisbon', '', 'PT', '1000-001')`,
		id, ownerEmail)
	require.NoError(t, err)
	return id
}

func seedCartLine(t *testing.T, ownerEmail, productID string, quantity int) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO cart_items (owner_email, product_id, quantity) VALUES ($1, $2, $3)`,
		ownerEmail, productID, quantity)
	require.NoError(t, err)
}

func productStock(t *testing.T, productID string) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(),
		`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n)
	require.NoError(t, err)
	return n
}
