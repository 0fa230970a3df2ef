package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	mockgw "github.com/utafrali/adexify/internal/provider/mock"
	"github.com/utafrali/adexify/internal/provider/paystack"
	"github.com/utafrali/adexify/internal/repository"
	redisrepo "github.com/utafrali/adexify/internal/repository/redis"
	"github.com/utafrali/adexify/internal/search/memory"
	"github.com/utafrali/adexify/internal/service"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/health"
	"github.com/utafrali/adexify/pkg/httputil"
	"github.com/utafrali/adexify/pkg/middleware"
	"github.com/utafrali/adexify/pkg/pagination"
)

// --- Mock Repositories ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID string, page pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, userID, page)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) MarkPaid(ctx context.Context, u domain.PaymentUpdate) (*domain.Order, bool, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Order), args.Bool(1), args.Error(2)
}

func (m *mockOrderRepository) MarkFailed(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

type mockStockRepository struct {
	mock.Mock
}

func (m *mockStockRepository) CommitForOrder(ctx context.Context, orderID string) ([]domain.StockMovement, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.StockMovement), args.Bool(1), args.Error(2)
}

type memoryAddresses struct {
	mu    sync.Mutex
	books map[string]*domain.AddressBook
}

func (m *memoryAddresses) Get(_ context.Context, userID string) (*domain.AddressBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[userID]
	if !ok {
		return nil, apperrors.NotFound("user", userID)
	}
	cp := *b
	cp.Addresses = append([]domain.Address(nil), b.Addresses...)
	return &cp, nil
}

func (m *memoryAddresses) Mutate(ctx context.Context, userID string, fn func(*domain.AddressBook) error) (*domain.AddressBook, error) {
	b, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.books[userID] = b
	m.mu.Unlock()
	return b, nil
}

type staticProducts []domain.Product

func (s staticProducts) List(_ context.Context, f repository.ProductFilter) ([]domain.Product, int, error) {
	var out []domain.Product
	for _, p := range s {
		if f.Category == "" || p.Category == f.Category {
			out = append(out, p)
		}
	}
	from, to := f.Page.Window(len(out))
	return out[from:to], len(out), nil
}

func (s staticProducts) GetByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range s {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s staticProducts) Each(_ context.Context, fn func(domain.Product) error) error {
	for _, p := range s {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

type countingViews struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (c *countingViews) Record(_ context.Context, productID string, viewer domain.Identity, day time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[productID+"|"+viewer.ViewerKey()+"|"+day.Format(time.DateOnly)] = struct{}{}
	var n int64
	for k := range c.seen {
		if len(k) > len(productID) && k[:len(productID)+1] == productID+"|" {
			n++
		}
	}
	return n, nil
}

// --- Test Helpers ---

type testAPI struct {
	handler http.Handler
	redis   *miniredis.Miniredis
	orders  *mockOrderRepository
	stock   *mockStockRepository
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := testLogger()
	producer := event.NewProducer(nil, logger)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	orders := new(mockOrderRepository)
	stock := new(mockStockRepository)
	gw := mockgw.NewGateway("http://checkout.test")

	catalog := staticProducts{
		{ID: "p1", Name: "Ankara Maxi Dress", Category: "dresses", Price: 15000, Stock: 4},
		{ID: "p2", Name: "Silk Head Wrap", Category: "accessories", Price: 2500, Stock: 0},
	}
	searchSvc := service.NewSearchService(memory.New(), catalog, logger)
	_, err := searchSvc.ReindexAll(context.Background())
	require.NoError(t, err)

	svc := Services{
		Collections: service.NewCollectionService(redisrepo.NewCollectionRepository(client, time.Hour, 24*time.Hour), producer, logger),
		Orders:      service.NewOrderService(orders, gw, producer, "http://shop.test", logger),
		Payments:    service.NewPaymentService(orders, stock, gw, producer, logger),
		Addresses: service.NewAddressService(&memoryAddresses{books: map[string]*domain.AddressBook{
			"user-1": {UserID: "user-1"},
		}}, logger),
		Products: service.NewProductService(catalog, &countingViews{seen: map[string]struct{}{}}, logger),
		Search:   searchSvc,
		Gateway:  gw,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewRouter(ctx, svc, health.NewHandler(), RouterConfig{
		ServiceName: "adexify-test",
		Identity:    middleware.IdentityConfig{TrustUserHeader: true},
		CORS:        middleware.DefaultCORSConfig("http://shop.test"),
	}, logger)

	return &testAPI{handler: h, redis: mr, orders: orders, stock: stock}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Data    json.RawMessage         `json:"data"`
	Error   *httputil.ErrorResponse `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type cartData struct {
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Subtotal  int64             `json:"subtotal"`
	CartToken string            `json:"cart_token"`
	UserID    string            `json:"user_id"`
}

// --- Tests ---

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/ready", nil, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/metrics", nil, nil).Code)
}

func TestCart_AnonymousAddIssuesToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/cart/add", map[string]any{
		"product_id": "p1", "name": "Ankara Maxi Dress", "price": 15000, "quantity": 2, "selected_size": "M",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token := rec.Header().Get(middleware.GuestTokenHeader)
	require.NotEmpty(t, token)

	var cart cartData
	env := decodeEnvelope(t, rec, &cart)
	assert.True(t, env.Success)
	assert.Equal(t, token, cart.CartToken)
	assert.Equal(t, 2, cart.ItemCount)
	assert.Equal(t, int64(30000), cart.Subtotal)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	// The same line again sums its quantity.
	rec = api.do(t, http.MethodPost, "/api/cart/add", map[string]any{
		"product_id": "p1", "price": 15000, "quantity": 1, "selected_size": "M",
	}, map[string]string{middleware.GuestTokenHeader: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/cart/get?cart_token="+token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestCart_AddValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/cart/add", map[string]any{"quantity": 2}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "product_id")
}

func TestCart_UpdateAndRemove(t *testing.T) {
	api := newTestAPI(t)
	user := map[string]string{middleware.UserIDHeader: "user-1"}

	rec := api.do(t, http.MethodPost, "/api/cart/add", map[string]any{"product_id": "p1", "price": 100, "quantity": 1}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(middleware.GuestTokenHeader))

	rec = api.do(t, http.MethodPut, "/api/cart/update", map[string]any{"product_id": "p1", "quantity": 4}, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cart cartData
	decodeEnvelope(t, rec, &cart)
	assert.Equal(t, 4, cart.ItemCount)

	rec = api.do(t, http.MethodDelete, "/api/cart/remove?product_id=p1", nil, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeEnvelope(t, rec, &cart)
	assert.Empty(t, cart.Items)

	rec = api.do(t, http.MethodDelete, "/api/cart/clear", nil, user)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, api.redis.Exists("cart:user:user-1"))
}

func TestWishlist_MergeGuestIntoUser(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/wishlist/add", map[string]any{"product_id": "p1", "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Header().Get(middleware.GuestTokenHeader)

	headers := map[string]string{middleware.UserIDHeader: "user-1", middleware.GuestTokenHeader: token}
	rec = api.do(t, http.MethodPost, "/api/wishlist/merge", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list cartData
	decodeEnvelope(t, rec, &list)
	assert.Equal(t, "user-1", list.UserID)
	assert.Equal(t, 2, list.ItemCount)
	assert.False(t, api.redis.Exists("wishlist:token:"+token))
	assert.True(t, api.redis.Exists("wishlist:user:user-1"))

	// Without a user the merge is refused.
	rec = api.do(t, http.MethodPost, "/api/wishlist/merge", map[string]string{"cart_token": token}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func orderBody(method string) map[string]any {
	return map[string]any{
		"customer": map[string]string{"first_name": "Ada", "last_name": "Obi", "email": "ada@example.com", "phone": "0800"},
		"address":  map[string]string{"street": "1 Marina", "city": "Lagos", "state": "Lagos"},
		"items": []map[string]any{
			{"product_id": "p1", "name": "Ankara Maxi Dress", "price": 5000, "quantity": 1},
		},
		"payment_method": method,
		"delivery_fee":   500,
	}
}

func TestOrders_CreatePayOnDelivery(t *testing.T) {
	api := newTestAPI(t)
	api.orders.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)

	rec := api.do(t, http.MethodPost, "/api/orders/create", orderBody("Pay on Delivery"),
		map[string]string{middleware.UserIDHeader: "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order domain.Order
	decodeEnvelope(t, rec, &order)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, int64(5500), order.Total)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, domain.OrderPending, order.OrderStatus)
	assert.Empty(t, order.TransactionRef)
}

func TestOrders_CreatePayOnlineReturnsPaymentURL(t *testing.T) {
	api := newTestAPI(t)
	api.orders.On("Create", mock.Anything, mock.Anything).Return(nil)

	body := orderBody("Pay Online")
	body["user_id"] = "user-9"
	rec := api.do(t, http.MethodPost, "/api/orders/create", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order domain.Order
	decodeEnvelope(t, rec, &order)
	assert.Equal(t, "user-9", order.UserID)
	assert.Equal(t, domain.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, "http://checkout.test?reference="+order.TransactionRef, order.PaymentURL)
}

func TestOrders_CreateValidation(t *testing.T) {
	api := newTestAPI(t)

	body := orderBody("Cash")
	body["items"] = []any{}
	rec := api.do(t, http.MethodPost, "/api/orders/create", body, map[string]string{middleware.UserIDHeader: "user-1"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec, nil)
	assert.Contains(t, env.Error.Fields, "items")
	assert.Contains(t, env.Error.Fields, "payment_method")
	api.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrders_ListUserOrdersEmptyIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.orders.On("ListByUser", mock.Anything, "user-1", mock.Anything).Return([]domain.Order{}, 0, nil)

	rec := api.do(t, http.MethodGet, "/api/orders/user?userId=user-1", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_StatusRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	id := "5b0c3c1e-6a55-4d1b-9d7a-0c5f3f2a9e11"

	rec := api.do(t, http.MethodPut, "/api/orders/"+id+"/status", map[string]string{"status": "processing"},
		map[string]string{middleware.UserIDHeader: "user-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	api.orders.On("GetByID", mock.Anything, id).Return(&domain.Order{ID: id, OrderStatus: domain.OrderDelivered}, nil)
	rec = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", map[string]string{"status": "shipped"},
		map[string]string{middleware.UserIDHeader: "admin-1", middleware.UserRoleHeader: RoleAdmin})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/orders/webhook", `{"event":"charge.success","data":{"reference":"REF_1"}}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	api.orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestWebhook_ChargeSuccess(t *testing.T) {
	api := newTestAPI(t)
	paid := &domain.Order{ID: "order-1", PaymentStatus: domain.PaymentPaid, OrderStatus: domain.OrderProcessing}
	api.orders.On("MarkPaid", mock.Anything, mock.MatchedBy(func(u domain.PaymentUpdate) bool {
		return u.Reference == "REF_1" && u.AmountMinor == 550000
	})).Return(paid, true, nil)
	api.stock.On("CommitForOrder", mock.Anything, "order-1").Return([]domain.StockMovement{{ProductID: "p1", Delta: -1}}, true, nil)

	rec := api.do(t, http.MethodPost, "/api/orders/webhook",
		`{"event":"charge.success","data":{"reference":"REF_1","amount":550000}}`,
		map[string]string{paystack.SignatureHeader: "sig"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	api.stock.AssertExpectations(t)
}

func TestWebhook_UnknownReferenceIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.orders.On("MarkPaid", mock.Anything, mock.Anything).Return(nil, false, apperrors.NotFound("order", "REF_X"))

	rec := api.do(t, http.MethodPost, "/api/orders/webhook",
		`{"event":"charge.success","data":{"reference":"REF_X"}}`,
		map[string]string{paystack.SignatureHeader: "sig"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyPayment(t *testing.T) {
	api := newTestAPI(t)
	api.orders.On("MarkPaid", mock.Anything, mock.Anything).
		Return(&domain.Order{ID: "order-1", PaymentStatus: domain.PaymentPaid}, true, nil)

	rec := api.do(t, http.MethodGet, "/api/orders/verify?reference=REF_1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders/verify", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddresses_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	user := map[string]string{middleware.UserIDHeader: "user-1"}

	rec := api.do(t, http.MethodPost, "/api/addresses/add", map[string]string{"state": "Lagos", "city": "Ikeja", "street": "3 Allen"}, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first domain.Address
	decodeEnvelope(t, rec, &first)
	assert.True(t, first.IsDefault)

	rec = api.do(t, http.MethodPost, "/api/addresses/add", map[string]string{"state": "Oyo", "city": "Ibadan", "street": "9 Ring Rd", "label": "Work"}, user)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second domain.Address
	decodeEnvelope(t, rec, &second)

	rec = api.do(t, http.MethodPut, "/api/addresses/set-default", map[string]string{"address_id": second.ID}, user)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/addresses/get-default", nil, user)
	var def domain.Address
	decodeEnvelope(t, rec, &def)
	assert.Equal(t, second.ID, def.ID)

	rec = api.do(t, http.MethodDelete, "/api/addresses/delete?address_id="+second.ID, nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var remaining []domain.Address
	decodeEnvelope(t, rec, &remaining)
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].IsDefault)

	rec = api.do(t, http.MethodGet, "/api/addresses/get", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_ListIsCacheable(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/products/category/dresses", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	var page httputil.Page[domain.Product]
	decodeEnvelope(t, rec, &page)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "p1", page.Items[0].ID)
}

func TestProducts_ViewsCountedOncePerViewer(t *testing.T) {
	api := newTestAPI(t)
	guest := map[string]string{middleware.GuestTokenHeader: "tok-1"}

	var views domain.ProductViews
	for range 2 {
		rec := api.do(t, http.MethodPost, "/api/products/views", map[string]string{"product_id": "p1"}, guest)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeEnvelope(t, rec, &views)
	}
	assert.Equal(t, int64(1), views.Views)

	rec := api.do(t, http.MethodPost, "/api/products/views", map[string]string{"product_id": "p1", "cart_token": "tok-2"}, nil)
	decodeEnvelope(t, rec, &views)
	assert.Equal(t, int64(2), views.Views)
}

func TestSearch(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/search", map[string]any{
		"collection": "products",
		"query":      "ankara",
		"filters":    map[string]any{"in_stock": true},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Total int `json:"total"`
		Hits  []struct {
			ID         string            `json:"id"`
			Highlights map[string]string `json:"highlights"`
		} `json:"hits"`
	}
	decodeEnvelope(t, rec, &res)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "<mark>Ankara</mark> Maxi Dress", res.Hits[0].Highlights["name"])

	rec = api.do(t, http.MethodPost, "/api/search", map[string]any{"collection": "orders", "query": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
