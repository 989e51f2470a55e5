//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/xenking/order-intake/internal/repository"
)

const testToken = "omni_pretest_token"

var (
	testPool *pgxpool.Pool
	baseURL  string
)

// Response types are local so the tests only see the wire format.

type detailResponse struct {
	Detail string `json:"detail"`
}

type orderResponse struct {
	Detail string `json:"detail"`
	Order  struct {
		ID          string  `json:"id"`
		OrderNumber string  `json:"order_number"`
		PromoCode   *string `json:"promo_code"`
		Subtotal    string  `json:"subtotal"`
		Discount    string  `json:"discount"`
		TotalPrice  string  `json:"total_price"`
		Items       []struct {
			ProductID string `json:"product_id"`
			Quantity  int    `json:"quantity"`
			UnitPrice string `json:"unit_price"`
		} `json:"items"`
	} `json:"order"`
}

type productResponse struct {
	ID              string `json:"id"`
	Price           string `json:"price"`
	QuantityInStock int    `json:"quantity_in_stock"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "intake",
				"POSTGRES_PASSWORD": "intake",
				"POSTGRES_DB":       "intake",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://intake:intake@%s:%s/intake?sslmode=disable", host, port.Port())
	testPool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := repository.RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	cfg := &Config{
		AccessToken: testToken,
		RateLimit:   RateLimitConfig{Max: 100_000, Window: time.Minute},
		CORS:        CORSConfig{Origins: []string{"*"}},
	}
	h, healthSvc, err := newServer(ctx, zap.NewNop(), cfg, testPool, noopTelemetry{})
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	healthSvc.Start(ctx, time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	srv := httptest.NewServer(h)
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

// seed resets the catalog to two products and one promotion covering both.
func seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := testPool.Exec(ctx, `TRUNCATE order_items, orders, promotion_products, promotions, products CASCADE`)
	require.NoError(t, err)

	_, err = testPool.Exec(ctx, `INSERT INTO products (id, name, description, price, quantity_in_stock) VALUES
		('p1', 'Test Product', 'first', 50.00, 10),
		('p2', 'Second Product', 'second', 100.00, 50),
		('p3', 'Excluded Product', 'third', 5.00, 5)`)
	require.NoError(t, err)

	_, err = testPool.Exec(ctx, `WITH promo AS (
			INSERT INTO promotions (name, code, discount_type, discount_value, starts_at, ends_at)
			VALUES ('Black Friday Sale', 'BF2025', 'percent', 20, NOW() - INTERVAL '1 day', NOW() + INTERVAL '30 days')
			RETURNING id
		)
		INSERT INTO promotion_products (promotion_id, product_id)
		SELECT id, p FROM promo, UNNEST(ARRAY['p1', 'p2']) AS p`)
	require.NoError(t, err)
}

func post(t *testing.T, path string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(baseURL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func stockOf(t *testing.T, id string) int {
	t.Helper()

	resp, err := http.Get(baseURL + "/api/products/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[productResponse](t, resp).QuantityInStock
}

func TestCreateOrder_Simple(t *testing.T) {
	seed(t)

	resp := post(t, "/api/orders", map[string]any{
		"access_token": testToken,
		"order_number": "ORD-1",
		"products":     []map[string]any{{"product_id": "p1", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[orderResponse](t, resp)
	assert.Equal(t, "ORD-1", got.Order.OrderNumber)
	assert.Equal(t, "100.00", got.Order.TotalPrice)
	assert.Nil(t, got.Order.PromoCode)
	assert.Equal(t, 8, stockOf(t, "p1"))

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/orders/ORD-1", nil)
	require.NoError(t, err)
	req.Header.Set("X-Access-Token", testToken)
	lookup, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, lookup.StatusCode)
	stored := decode[struct {
		OrderNumber string `json:"order_number"`
		TotalPrice  string `json:"total_price"`
	}](t, lookup)
	assert.Equal(t, "ORD-1", stored.OrderNumber)
	assert.Equal(t, "100.00", stored.TotalPrice)
}

func TestCreateOrder_WithPromotion(t *testing.T) {
	seed(t)

	resp := post(t, "/api/orders", map[string]any{
		"access_token": testToken,
		"order_number": "ORD-BF",
		"promo_code":   "bf2025",
		"total_price":  1,
		"products":     []map[string]any{{"product_id": "p2", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[orderResponse](t, resp)
	assert.Equal(t, "200.00", got.Order.Subtotal)
	assert.Equal(t, "40.00", got.Order.Discount)
	assert.Equal(t, "160.00", got.Order.TotalPrice)
	require.NotNil(t, got.Order.PromoCode)
	assert.Equal(t, "BF2025", *got.Order.PromoCode)
	assert.Equal(t, 48, stockOf(t, "p2"))
}

func TestCreateOrder_Rejections(t *testing.T) {
	seed(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantDetail string
	}{
		{
			name:       "missing token",
			body:       map[string]any{"order_number": "X", "products": []map[string]any{{"product_id": "p1"}}},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Invalid or missing access token",
		},
		{
			name: "unknown product",
			body: map[string]any{
				"access_token": testToken, "order_number": "X1",
				"products": []map[string]any{{"product_id": "p1"}, {"product_id": "nope"}},
			},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Product with id nope not found",
		},
		{
			name: "oversell",
			body: map[string]any{
				"access_token": testToken, "order_number": "X2",
				"products": []map[string]any{{"product_id": "p3", "quantity": 6}},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "promotion not applicable",
			body: map[string]any{
				"access_token": testToken, "order_number": "X3", "promo_code": "BF2025",
				"products": []map[string]any{{"product_id": "p1"}, {"product_id": "p3"}},
			},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Promo code is not applicable to all products in the order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, "/api/orders", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			got := decode[detailResponse](t, resp)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, got.Detail)
			}
		})
	}

	// Nothing was written by any rejected order.
	assert.Equal(t, 10, stockOf(t, "p1"))
	assert.Equal(t, 5, stockOf(t, "p3"))
}

func TestCreateOrder_Duplicate(t *testing.T) {
	seed(t)

	body := map[string]any{
		"access_token": testToken,
		"order_number": "ORD-DUP",
		"products":     []map[string]any{{"product_id": "p1"}},
	}
	resp := post(t, "/api/orders", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = post(t, "/api/orders", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 9, stockOf(t, "p1"))
}

func TestCreateOrder_ConcurrentNoOversell(t *testing.T) {
	seed(t)

	const buyers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := post(t, "/api/orders", map[string]any{
				"access_token": testToken,
				"order_number": fmt.Sprintf("RACE-%d", i),
				"products":     []map[string]any{{"product_id": "p3"}, {"product_id": "p1"}},
			})
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, created)
	assert.Equal(t, 0, stockOf(t, "p3"))
	assert.Equal(t, 5, stockOf(t, "p1"))
}

func TestRestock(t *testing.T) {
	seed(t)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/products/p1/restock",
		bytes.NewReader([]byte(`{"quantity": 10}`)))
	require.NoError(t, err)
	req.Header.Set("X-Access-Token", testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 20, stockOf(t, "p1"))

	resp = post(t, "/api/products/missing/restock", map[string]any{"access_token": testToken, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	resp, err := http.Get(baseURL + "/livez")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
