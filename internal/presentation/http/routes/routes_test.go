package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/infrastructure/database"
	"github.com/sangkips/tillsync/internal/infrastructure/repository"
	"github.com/sangkips/tillsync/internal/presentation/http/handler"
	"github.com/sangkips/tillsync/internal/presentation/http/middleware"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSyncJob struct {
	err     error
	summary *replication.RunSummary
	modes   []replication.Mode
}

func (f *fakeSyncJob) Run(_ context.Context, mode replication.Mode) (*replication.RunSummary, error) {
	f.modes = append(f.modes, mode)
	return f.summary, f.err
}

func (f *fakeSyncJob) Status(context.Context) (*replication.JobStatus, error) {
	return &replication.JobStatus{Job: "pos"}, nil
}

func (f *fakeSyncJob) Failures(context.Context, int) ([]entity.SyncFailure, error) {
	return []entity.SyncFailure{{JobName: "pos", EntityType: "sales", NaturalKey: "k1", Reason: "product missing"}}, nil
}

type testAPI struct {
	router  *gin.Engine
	db      *gorm.DB
	jwt     *utils.JWTManager
	sync    *fakeSyncJob
	cashier string
	admin   string
}

func newTestAPI(t *testing.T, limiter *middleware.ActorRateLimiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"), false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	log := zerolog.Nop()
	tx := repository.NewTransactor(db)
	receipts := repository.NewReceiptRepository(db)
	payments := repository.NewPaymentRepository(db)
	customers := repository.NewCustomerRepository(db)
	credits := service.NewStoreCreditService(tx, repository.NewStoreCreditRepository(db), customers, service.NopPublisher{}, log)
	settlement := service.NewSettlementService(tx, receipts, payments, repository.NewPartialPaymentRepository(db), credits, service.NopPublisher{}, log)
	checkout := service.NewCheckoutService(tx, receipts, repository.NewSaleRepository(db), payments,
		repository.NewProductRepository(db), customers, settlement, log)

	api := &testAPI{
		db:   db,
		jwt:  utils.NewJWTManager("api-test-secret", "tillsync", time.Hour),
		sync: &fakeSyncJob{summary: &replication.RunSummary{RunID: "run-1", Mode: replication.ModeFull}},
	}
	api.router = Setup(&Handlers{
		Receipt:     handler.NewReceiptHandler(checkout),
		Settlement:  handler.NewSettlementHandler(settlement),
		StoreCredit: handler.NewStoreCreditHandler(credits),
		Sync:        handler.NewSyncHandler(api.sync),
	}, &Deps{
		JWTManager:      api.jwt,
		Cfg:             &config.Config{App: config.AppConfig{Name: "tillsync"}},
		IdempotencyRepo: repository.NewIdempotencyRepository(db),
		RateLimiter:     limiter,
		Gatherer:        prometheus.NewRegistry(),
		Log:             log,
	})

	api.cashier, err = api.jwt.GenerateAccessToken(uuid.New(), "Ada", []string{utils.RoleCashier})
	require.NoError(t, err)
	api.admin, err = api.jwt.GenerateAccessToken(uuid.New(), "Bola", []string{utils.RoleAdmin})
	require.NoError(t, err)
	return api
}

type apiResult struct {
	Status   int
	Replayed bool
	Raw      string
	Body     struct {
		Success bool                  `json:"success"`
		Message string                `json:"message"`
		Reason  string                `json:"reason"`
		Data    json.RawMessage       `json:"data"`
		Details map[string]any        `json:"details"`
		Errors  []apperror.FieldError `json:"errors"`
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) *apiResult {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	res := &apiResult{
		Status:   rec.Code,
		Replayed: rec.Header().Get(middleware.ReplayedHeader) == "true",
		Raw:      rec.Body.String(),
	}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &res.Body)
	}
	return res
}

func (a *testAPI) product(t *testing.T, price int64) *entity.Product {
	t.Helper()
	p := &entity.Product{Code: "BC-" + uuid.NewString()[:6], Brand: "Ankara", Quantity: 5, SellingPrice: price}
	require.NoError(t, a.db.Create(p).Error)
	return p
}

// checkout creates a receipt for one product and returns its id.
func (a *testAPI) checkout(t *testing.T, price int64, deposit float64) string {
	t.Helper()
	body := map[string]any{
		"items": []map[string]any{{"product_id": a.product(t, price).ID, "quantity": 1}},
	}
	if deposit > 0 {
		body["payments"] = []map[string]any{{"amount": deposit, "method": "cash"}}
	}
	res := a.do(t, http.MethodPost, "/api/v1/receipts", a.cashier, body)
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)

	var receipt struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Data, &receipt))
	return receipt.ID
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Raw, `"status":"ok"`)

	res = api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	syncOnly, err := api.jwt.GenerateAccessToken(uuid.New(), "mirror", []string{utils.RoleSync})
	require.NoError(t, err)
	res = api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", syncOnly, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
}

func TestCheckoutAndSettle(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.checkout(t, 5000, 20)

	res := api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", api.cashier, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Body.Data), id)

	res = api.do(t, http.MethodPost, "/api/v1/receipts/"+id+"/settlements", api.cashier, map[string]any{
		"payments": []map[string]any{
			{"amount": 10, "method": "mobile_money", "reference": "MM-778"},
			{"amount": 20, "method": "cash"},
		},
	})
	require.Equal(t, http.StatusOK, res.Status, res.Raw)

	var result struct {
		Receipt struct {
			PaymentStatus    string  `json:"payment_status"`
			BalanceRemaining float64 `json:"balance_remaining"`
		} `json:"receipt"`
		AmountApplied float64 `json:"amount_applied"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Data, &result))
	assert.Equal(t, "paid", result.Receipt.PaymentStatus)
	assert.Zero(t, result.Receipt.BalanceRemaining)
	assert.Equal(t, 30.0, result.AmountApplied)

	res = api.do(t, http.MethodGet, "/api/v1/receipts/"+id+"/settlements", api.cashier, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Data, &history))
	assert.Len(t, history, 3)
}

func TestSettlementErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.checkout(t, 5000, 0)
	path := "/api/v1/receipts/" + id + "/settlements"

	res := api.do(t, http.MethodPost, path, api.cashier, map[string]any{
		"payments": []map[string]any{{"amount": 60, "method": "cash"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Equal(t, apperror.ReasonOverpayment, res.Body.Reason)
	assert.Equal(t, 50.0, res.Body.Details["balance_remaining"])

	res = api.do(t, http.MethodPost, path, api.cashier, map[string]any{
		"payments": []map[string]any{{"amount": 1.005, "method": "cash"}},
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, apperror.ReasonValidation, res.Body.Reason)

	res = api.do(t, http.MethodPost, path, api.cashier, map[string]any{"payments": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = api.do(t, http.MethodPost, "/api/v1/receipts/"+uuid.NewString()+"/settlements", api.cashier, map[string]any{
		"payments": []map[string]any{{"amount": 1, "method": "cash"}},
	})
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = api.do(t, http.MethodGet, "/api/v1/receipts/not-a-uuid", api.cashier, nil)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestSettlementIdempotencyKey(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.checkout(t, 5000, 0)
	path := "/api/v1/receipts/" + id + "/settlements"
	body := map[string]any{"payments": []map[string]any{{"amount": 15, "method": "cash"}}}

	first := api.do(t, http.MethodPost, path, api.cashier, body, middleware.IdempotencyKeyHeader, "till-7-0001")
	require.Equal(t, http.StatusOK, first.Status, first.Raw)
	assert.False(t, first.Replayed)

	second := api.do(t, http.MethodPost, path, api.cashier, body, middleware.IdempotencyKeyHeader, "till-7-0001")
	require.Equal(t, http.StatusOK, second.Status)
	assert.True(t, second.Replayed)
	assert.JSONEq(t, first.Raw, second.Raw)

	var n int64
	require.NoError(t, api.db.Model(&entity.PartialPayment{}).Where("receipt_id = ?", id).Count(&n).Error)
	assert.Equal(t, int64(1), n, "replayed request must not pay twice")

	other := map[string]any{"payments": []map[string]any{{"amount": 5, "method": "cash"}}}
	res := api.do(t, http.MethodPost, path, api.cashier, other, middleware.IdempotencyKeyHeader, "till-7-0001")
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestStoreCreditRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	customer := &entity.Customer{Name: "Ada Obi"}
	require.NoError(t, api.db.Create(customer).Error)
	path := "/api/v1/customers/" + customer.ID.String() + "/store-credits"

	res := api.do(t, http.MethodPost, path, api.cashier, map[string]any{"amount": 40})
	assert.Equal(t, http.StatusForbidden, res.Status, "only admins issue credit")

	res = api.do(t, http.MethodPost, path, api.admin, map[string]any{"amount": 40})
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)

	res = api.do(t, http.MethodPost, path+"/allocations", api.cashier, map[string]any{"amount": 15})
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)

	res = api.do(t, http.MethodGet, path, api.cashier, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var balance struct {
		Available float64 `json:"available"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Data, &balance))
	assert.Equal(t, 25.0, balance.Available)

	res = api.do(t, http.MethodPost, path+"/allocations", api.cashier, map[string]any{"amount": 30})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Equal(t, apperror.ReasonInsufficientCredit, res.Body.Reason)
}

func TestStandaloneAllocationLeavesReceiptsAlone(t *testing.T) {
	api := newTestAPI(t, nil)
	customer := &entity.Customer{Name: "Ada Obi"}
	require.NoError(t, api.db.Create(customer).Error)
	path := "/api/v1/customers/" + customer.ID.String() + "/store-credits"
	res := api.do(t, http.MethodPost, path, api.admin, map[string]any{"amount": 40})
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)

	receiptID := api.checkout(t, 5000, 0)
	res = api.do(t, http.MethodPost, path+"/allocations", api.cashier, map[string]any{"amount": 20, "receipt_id": receiptID})
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)

	var linked int64
	require.NoError(t, api.db.Model(&entity.StoreCreditUsage{}).Where("receipt_id = ?", receiptID).Count(&linked).Error)
	assert.Zero(t, linked)

	var receipt entity.Receipt
	require.NoError(t, api.db.First(&receipt, "id = ?", receiptID).Error)
	assert.Equal(t, int64(0), receipt.AmountPaid)
	assert.Equal(t, int64(5000), receipt.BalanceRemaining)
}

func TestSyncRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodPost, "/api/v1/sync/runs", api.cashier, map[string]any{"mode": "full"})
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = api.do(t, http.MethodPost, "/api/v1/sync/runs", api.admin, map[string]any{"mode": "full"})
	require.Equal(t, http.StatusOK, res.Status, res.Raw)
	assert.Equal(t, []replication.Mode{replication.ModeFull}, api.sync.modes)

	res = api.do(t, http.MethodPost, "/api/v1/sync/runs", api.admin, map[string]any{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	api.sync.summary, api.sync.err = nil, apperror.ErrSyncAlreadyRunning
	res = api.do(t, http.MethodPost, "/api/v1/sync/runs", api.admin, nil)
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, apperror.ReasonSyncAlreadyRunning, res.Body.Reason)

	res = api.do(t, http.MethodGet, "/api/v1/sync/failures?limit=5", api.admin, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Body.Data), "product missing")

	res = api.do(t, http.MethodGet, "/api/v1/sync/status", api.admin, nil)
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, middleware.NewActorRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
	}))

	res := api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", api.cashier, nil)
	assert.Equal(t, http.StatusOK, res.Status)
	res = api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", api.cashier, nil)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)

	// Limits are per actor.
	res = api.do(t, http.MethodGet, "/api/v1/receipts/outstanding", api.admin, nil)
	assert.Equal(t, http.StatusOK, res.Status)
}
