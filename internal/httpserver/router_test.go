package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/audit"
	"storefront/internal/domain"
	"storefront/internal/repository/cartstore"
	orderrepo "storefront/internal/repository/order"
	cartsvc "storefront/internal/service/cart"
	ordersvc "storefront/internal/service/order"
	productsvc "storefront/internal/service/product"
	usersvc "storefront/internal/service/user"
)

const adminKey = "let-me-in"

type testEnv struct {
	router *gin.Engine
	store  *orderrepo.Memory
	orders *ordersvc.Service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := orderrepo.NewMemory(nil)
	for _, p := range []domain.Product{
		{ID: "p1", Key: "mug", Name: "Mug", Brand: "Acme", Price: decimal.RequireFromString("10.00"), Stock: 5},
		{ID: "p2", Key: "tee", Name: "Tee", Brand: "Other", Price: decimal.RequireFromString("25.50"), Stock: 0},
	} {
		_, err := store.Catalog().Upsert(ctx, p)
		require.NoError(t, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)

	orders := ordersvc.New(store, store.Catalog(), audit.NewMemory(), nil, ordersvc.Options{})
	router, err := buildRouter(zap.NewNop(), Deps{
		ProductSvc:  productsvc.New(store.Catalog()),
		CartSvc:     cartsvc.New(store.Catalog()),
		Sessions:    cartsvc.NewManager(cartstore.NewMemory(), time.Hour, nil),
		OrderSvc:    orders,
		UserSvc:     usersvc.New(store.Users(), string(hash)),
		TaxRate:     0.08,
		CORSOrigins: []string{"*"},
	})
	require.NoError(t, err)
	return testEnv{router: router, store: store, orders: orders}
}

func (e testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (e testEnv) startSession(t *testing.T) string {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := body["sessionId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, rec.Header().Get(headerSessionID))
	return id
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ok", readyHandler(map[string]Pinger{"db": stubPinger{}}))
	router.GET("/down", readyHandler(map[string]Pinger{"redis": stubPinger{err: errors.New("refused")}}))
	router.GET("/none", readyHandler(nil))

	for path, want := range map[string]int{"/ok": http.StatusOK, "/down": http.StatusServiceUnavailable, "/none": http.StatusServiceUnavailable} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestBuildRouterRequiresDeps(t *testing.T) {
	_, err := buildRouter(zap.NewNop(), Deps{})
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/products?inStock=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = env.do(t, http.MethodGet, "/products?brand=other", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "25.50", results[0].(map[string]interface{})["price"])

	rec, _ = env.do(t, http.MethodGet, "/products?inStock=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/products/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mug", body["name"])
	assert.Equal(t, true, body["inStock"])

	rec, body = env.do(t, http.MethodGet, "/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestCartRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := env.do(t, http.MethodGet, "/cart", "", map[string]string{headerSessionID: "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", body["error"])
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	sid := env.startSession(t)
	h := map[string]string{headerSessionID: sid}

	rec, body := env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":1}`, h)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, body = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`, h)
	require.Equal(t, http.StatusOK, rec.Code)

	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	line := items[0].(map[string]interface{})
	assert.EqualValues(t, 3, line["quantity"])
	assert.Equal(t, "30.00", body["subtotal"])
	assert.Equal(t, "2.40", body["tax"])
	assert.Equal(t, "32.40", body["total"])
	assert.NotEmpty(t, body["notifications"])

	lineID := line["id"].(string)
	rec, body = env.do(t, http.MethodPatch, "/cart/items/"+lineID, `{"quantity":1}`, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.00", body["subtotal"])

	rec, _ = env.do(t, http.MethodPatch, "/cart/items/"+lineID, `{}`, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(t, http.MethodPatch, "/cart/items/"+lineID, `{"quantity":1000}`, h)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_quantity", body["error"])

	rec, body = env.do(t, http.MethodDelete, "/cart/items/"+lineID, "", h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])

	rec, body = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":0}`, h)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_quantity", body["error"])
	assert.Equal(t, "quantity must be at least 1", body["message"])

	rec, body = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":9223372036854775807}`, h)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "quantity limited to 999 per line", body["message"])

	rec, body = env.do(t, http.MethodPost, "/cart/items", `{"productId":"ghost"}`, h)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/cart/items", `{`, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, _ = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1"}`, h)
	rec, body = env.do(t, http.MethodDelete, "/cart", "", h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["itemCount"])
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	sid := env.startSession(t)
	anon := map[string]string{headerSessionID: sid}
	user := map[string]string{headerSessionID: sid, headerUserID: "u1", headerUserEmail: "u1@example.com"}

	rec, body := env.do(t, http.MethodPost, "/checkout", "", user)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cart is empty", body["message"])

	rec, _ = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`, anon)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = env.do(t, http.MethodPost, "/checkout", "", anon)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "please sign in", body["message"])

	rec, _ = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`, user)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = env.do(t, http.MethodPost, "/checkout", `{"email":"u1@example.com"}`, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := body["orderId"].(string)
	require.NotEmpty(t, orderID)

	rec, body = env.do(t, http.MethodGet, "/cart", "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])

	p, err := env.store.Catalog().GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	rec, body = env.do(t, http.MethodGet, "/orders", "", map[string]string{headerUserID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = env.do(t, http.MethodGet, "/orders/"+orderID, "", map[string]string{headerUserID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "20.00", body["total"])

	rec, _ = env.do(t, http.MethodGet, "/orders/"+orderID, "", map[string]string{headerUserID: "u2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutOutOfStock(t *testing.T) {
	env := newTestEnv(t)
	sid := env.startSession(t)
	h := map[string]string{headerSessionID: sid, headerUserID: "u1"}

	rec, _ := env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":6}`, h)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/checkout", "", h)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "out_of_stock", body["error"])
	assert.Equal(t, "p1", body["productId"])
	assert.EqualValues(t, 5, body["available"])

	rec, body = env.do(t, http.MethodGet, "/cart", "", h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 6, body["itemCount"])
}

func TestAdminOrders(t *testing.T) {
	env := newTestEnv(t)
	sid := env.startSession(t)
	h := map[string]string{headerSessionID: sid, headerUserID: "u1"}
	_, _ = env.do(t, http.MethodPost, "/cart/items", `{"productId":"p1"}`, h)
	_, body := env.do(t, http.MethodPost, "/checkout", "", h)
	orderID := body["orderId"].(string)

	rec, _ := env.do(t, http.MethodGet, "/admin/orders", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/admin/orders", "", map[string]string{headerAdminKey: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := map[string]string{headerAdminKey: adminKey}
	rec, body = env.do(t, http.MethodGet, "/admin/orders", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	env.orders.Wait()
	rec, body = env.do(t, http.MethodPatch, "/admin/orders/"+orderID+"/status", `{"status":"shipped"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", body["status"])
	assert.NotNil(t, body["updatedAt"])

	rec, body = env.do(t, http.MethodPatch, "/admin/orders/"+orderID+"/status", `{"status":"pending"}`, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", body["error"])

	rec, _ = env.do(t, http.MethodPatch, "/admin/orders/"+orderID+"/status", `{"status":"lost"}`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = env.do(t, http.MethodPatch, "/admin/orders/missing/status", `{"status":"shipped"}`, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPatch, "/admin/orders/"+orderID+"/status", `{}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.orders.Wait()
	rec, body = env.do(t, http.MethodGet, "/admin/orders/"+orderID, "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", body["status"])
	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, "order_status_changed", history[0].(map[string]interface{})["action"])
	assert.Equal(t, "order_placed", history[1].(map[string]interface{})["action"])

	rec, _ = env.do(t, http.MethodGet, "/admin/orders/missing", "", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
		code string
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{&domain.OutOfStockError{ProductID: "p1", Requested: 3, Available: -1}, http.StatusConflict, "out_of_stock"},
		{domain.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
		{&domain.InvalidLineItemError{Index: 2, Reason: "unknown product"}, http.StatusUnprocessableEntity, "invalid_line_item"},
		{&domain.MissingFieldError{Field: "total"}, http.StatusUnprocessableEntity, "missing_field"},
		{&domain.CommitError{Err: errors.New("pq: connection refused")}, http.StatusServiceUnavailable, "commit_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		writeError(c, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error)
		assert.NotContains(t, body.Message, "pq:")
		assert.NotContains(t, body.Message, "boom")
	}
}
