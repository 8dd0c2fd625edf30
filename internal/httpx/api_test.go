package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-checkout-core/internal/cart"
	"github.com/ariefcatur/go-checkout-core/internal/checkout"
	"github.com/ariefcatur/go-checkout-core/internal/inventory"
	"github.com/ariefcatur/go-checkout-core/internal/logx"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/orders/ordertest"
	"github.com/ariefcatur/go-checkout-core/internal/payment"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/ariefcatur/go-checkout-core/internal/returns"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type testServer struct {
	t     *testing.T
	h     http.Handler
	store *ordertest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logx.Discard()
	store := ordertest.New()
	kv := redisx.NewMemory()
	pub := &ordertest.Publisher{}

	api := &API{
		Catalog:   &inventory.Catalog{Products: store.Products(), Cache: kv, Log: log},
		Cart:      cart.NewService(store, log),
		Checkout:  checkout.NewService(store, kv, pub, log, checkout.Options{ServiceName: "test"}),
		Payments:  payment.NewService(store, pub, log, "test"),
		Returns:   returns.NewService(store, pub, log, "test"),
		JWTSecret: secret,
		Log:       log,
	}
	r := NewRouter(log)
	api.Register(r)
	return &testServer{t: t, h: r, store: store}
}

type response struct {
	Code    int         `json:"-"`
	Header  http.Header `json:"-"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (s *testServer) do(method, path, user, role string, body any, headers ...string) response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		tok, err := SignToken(secret, user, role)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return out
}

func decodeData[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

var addr = map[string]string{"line1": "1 Main St"}

func checkoutBody(method string) map[string]any {
	return map[string]any{"shipping_address": addr, "billing_address": addr, "payment_method": method}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	res := s.do(http.MethodGet, "/api/v1/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.False(t, res.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	bad, err := SignToken([]byte("other"), "u1", "user")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	res = s.do(http.MethodGet, "/api/v1/admin/orders", "u1", "user", nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(http.MethodGet, "/api/v1/admin/orders", "boss", RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	p := s.store.AddProduct(orders.Product{Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5})

	res := s.do(http.MethodGet, "/api/v1/cart", "u1", "user", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, res.Success)

	res = s.do(http.MethodPost, "/api/v1/cart/items", "u1", "user", map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, res.Code, res.Message)
	c := decodeData[orders.Cart](t, res)
	require.Len(t, c.Items, 1)

	res = s.do(http.MethodGet, "/api/v1/cart/validate", "u1", "user", nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("cc"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, res.Code, res.Message)
	o := decodeData[orders.Order](t, res)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, 3, s.store.Product(p.ID).Stock)

	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("cc"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "true", res.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, o.ID, decodeData[orders.Order](t, res).ID)

	res = s.do(http.MethodGet, "/api/v1/orders/"+o.ID+"/payment", "u1", "user", nil)
	require.Equal(t, http.StatusOK, res.Code)
	pay := decodeData[orders.Payment](t, res)
	assert.Equal(t, orders.PaymentCompleted, pay.Status)

	res = s.do(http.MethodPost, "/api/v1/payments/"+pay.ID+"/verify", "u1", "user", map[string]string{"transaction_id": "txn-12345"})
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	assert.Equal(t, "txn-12345", decodeData[orders.Payment](t, res).TransactionID)

	res = s.do(http.MethodPost, "/api/v1/payments/"+pay.ID+"/verify", "u1", "user", map[string]string{"payment_id": "other", "transaction_id": "txn-12345"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodGet, "/api/v1/orders?page=1&limit=10", "u1", "user", nil)
	require.Equal(t, http.StatusOK, res.Code)
	list := decodeData[struct {
		Orders []orders.Order `json:"orders"`
		Meta   listMeta       `json:"meta"`
	}](t, res)
	assert.Len(t, list.Orders, 1)
	assert.Equal(t, listMeta{Page: 1, Limit: 10, Total: 1, TotalPages: 1}, list.Meta)

	res = s.do(http.MethodGet, "/api/v1/orders/"+o.ID, "u2", "user", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = s.do(http.MethodPut, "/api/v1/orders/"+o.ID+"/cancel", "u1", "user", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	assert.Equal(t, orders.StatusCancelled, decodeData[orders.Order](t, res).Status)
	assert.Equal(t, 5, s.store.Product(p.ID).Stock)
}

func TestCheckoutErrors(t *testing.T) {
	s := newTestServer(t)
	p := s.store.AddProduct(orders.Product{Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 1})

	res := s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("cc"))
	assert.Equal(t, http.StatusBadRequest, res.Code, "empty cart")

	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("wire"))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodPost, "/api/v1/cart/items", "u1", "user", map[string]any{"product_id": p.ID, "quantity": 2})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = s.do(http.MethodPost, "/api/v1/cart/items", "u1", "user", map[string]any{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, res.Code)
	require.NoError(t, s.store.Products().DecrementStock(context.Background(), p.ID, 1))

	res = s.do(http.MethodGet, "/api/v1/cart/validate", "u1", "user", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	v := decodeData[cart.Validation](t, res)
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"Insufficient stock for mug"}, v.Errors)

	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("cod"))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, 0, s.store.OrderCount())
}

func TestAdminAndReturns(t *testing.T) {
	s := newTestServer(t)
	p := s.store.AddProduct(orders.Product{Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5})

	res := s.do(http.MethodPost, "/api/v1/cart/items", "u1", "user", map[string]any{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, res.Code)
	res = s.do(http.MethodPost, "/api/v1/orders", "u1", "user", checkoutBody("cod"))
	require.Equal(t, http.StatusCreated, res.Code)
	o := decodeData[orders.Order](t, res)

	res = s.do(http.MethodPost, "/api/v1/returns", "u1", "user", map[string]string{"order_id": o.ID, "reason": "broken"})
	assert.Equal(t, http.StatusConflict, res.Code, "pending orders are not returnable")

	res = s.do(http.MethodPut, "/api/v1/admin/orders/"+o.ID+"/status", "boss", RoleAdmin, map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, res.Code)
	for _, st := range []string{"processing", "shipped", "delivered"} {
		res = s.do(http.MethodPut, "/api/v1/admin/orders/"+o.ID+"/status", "boss", RoleAdmin, map[string]string{"status": st})
		require.Equal(t, http.StatusOK, res.Code, res.Message)
	}

	res = s.do(http.MethodPost, "/api/v1/returns", "u2", "user", map[string]string{"order_id": o.ID, "reason": "broken"})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = s.do(http.MethodPost, "/api/v1/returns", "u1", "user", map[string]string{"order_id": o.ID, "reason": "broken"})
	require.Equal(t, http.StatusCreated, res.Code, res.Message)
	ret := decodeData[orders.Return](t, res)

	res = s.do(http.MethodGet, "/api/v1/returns/"+ret.ID, "u1", "user", nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = s.do(http.MethodPost, "/api/v1/admin/returns/"+ret.ID+"/process", "boss", RoleAdmin, map[string]any{"status": "settled", "refund_amount": 5})
	assert.Equal(t, http.StatusConflict, res.Code)
	res = s.do(http.MethodPost, "/api/v1/admin/returns/"+ret.ID+"/process", "boss", RoleAdmin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	res = s.do(http.MethodPost, "/api/v1/admin/returns/"+ret.ID+"/process", "boss", RoleAdmin, map[string]any{"status": "settled", "refund_amount": 10})
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	settled := decodeData[orders.Return](t, res)
	assert.Equal(t, orders.ReturnSettled, settled.Status)
	assert.True(t, settled.RefundAmount.Decimal.Equal(decimal.NewFromInt(10)))

	res = s.do(http.MethodGet, "/api/v1/admin/returns?status=settled", "boss", RoleAdmin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = s.do(http.MethodGet, "/api/v1/admin/orders/"+o.ID, "boss", RoleAdmin, nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)
	p := s.store.AddProduct(orders.Product{Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5})

	res := s.do(http.MethodGet, "/api/v1/products/"+p.ID, "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "mug", decodeData[orders.Product](t, res).Name)

	res = s.do(http.MethodGet, "/api/v1/products/missing", "", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
