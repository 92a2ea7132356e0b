package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/internal/customer"
	"github.com/Aidin1998/brokerage/internal/ledger"
	"github.com/Aidin1998/brokerage/internal/matching"
	"github.com/Aidin1998/brokerage/internal/order"
	"github.com/Aidin1998/brokerage/internal/trade"
	"github.com/Aidin1998/brokerage/internal/transaction"
	"github.com/Aidin1998/brokerage/pkg/keylock"
	"github.com/Aidin1998/brokerage/pkg/models"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Customer{}, &models.Asset{}, &models.TradeOrder{},
		&models.Trade{}, &models.Transaction{},
	))

	log := zap.NewNop()
	locks := keylock.New()
	customers := customer.NewService(log, db)
	ledgerSvc := ledger.NewService(log, db, locks)
	orders := order.NewService(log, db, customers, ledgerSvc, locks)
	trades := trade.NewRecorder(log, db)
	transactions := transaction.NewService(log, db, customers, ledgerSvc)
	engine := matching.NewEngine(log, db, ledgerSvc, trades, locks)
	return NewServer(log, customers, ledgerSvc, orders, trades, transactions, engine)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func createTestCustomer(t *testing.T, s *Server, name string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/customers", gin.H{"name": name, "surname": "Tester"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["id"].(string)
}

func depositTRY(t *testing.T, s *Server, customerID, amount string) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/transactions", gin.H{
		"customerId": customerID, "type": "DEPOSIT", "amount": amount,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCustomerLifecycle(t *testing.T) {
	s := setupTestServer(t)

	id := createTestCustomer(t, s, "Ada")
	w := doJSON(t, s, http.MethodGet, "/api/v1/customers/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decodeBody(t, w)["name"])

	w = doJSON(t, s, http.MethodPost, "/api/v1/customers", gin.H{"name": "NoSurname"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/customers/e7b9f1f0-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCustomers(t *testing.T) {
	s := setupTestServer(t)
	createTestCustomer(t, s, "Ada")
	createTestCustomer(t, s, "Grace")

	w := doJSON(t, s, http.MethodGet, "/api/v1/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	customers := decodeBody(t, w)["customers"].([]any)
	assert.Len(t, customers, 2)
}

func TestDepositAndListAssets(t *testing.T) {
	s := setupTestServer(t)
	id := createTestCustomer(t, s, "Ada")
	depositTRY(t, s, id, "1000")

	w := doJSON(t, s, http.MethodGet, "/api/v1/assets?customerId="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assets := decodeBody(t, w)["assets"].([]any)
	require.Len(t, assets, 1)
	asset := assets[0].(map[string]any)
	assert.Equal(t, "TRY", asset["asset_code"])
	assert.Equal(t, "1000", asset["size"])
}

func TestWithdrawalBeyondBalanceIs422(t *testing.T) {
	s := setupTestServer(t)
	id := createTestCustomer(t, s, "Ada")
	depositTRY(t, s, id, "100")

	w := doJSON(t, s, http.MethodPost, "/api/v1/transactions", gin.H{
		"customerId": id, "type": "WITHDRAWAL", "amount": "500",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// The rejected row is still visible as unprocessed.
	w = doJSON(t, s, http.MethodGet, "/api/v1/transactions?customerId="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	txns := decodeBody(t, w)["transactions"].([]any)
	require.Len(t, txns, 2)
}

func TestOrderFlowThroughMatching(t *testing.T) {
	s := setupTestServer(t)
	buyer := createTestCustomer(t, s, "Buyer")
	seller := createTestCustomer(t, s, "Seller")
	depositTRY(t, s, buyer, "1000")

	// Give the seller shares through the ledger directly; there is no
	// deposit endpoint for non-currency assets.
	require.NoError(t, s.ledger.Assign(context.Background(),
		uuid.MustParse(seller), "GARAN", decimal.RequireFromString("10")))

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": buyer, "assetCode": "GARAN", "side": "BUY", "size": "10", "price": "50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	buyID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": seller, "assetCode": "GARAN", "side": "SELL", "size": "10", "price": "45",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/v1/match/GARAN", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decodeBody(t, w)["tradesExecuted"])

	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s/trades", buyID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	trades := decodeBody(t, w)["trades"].([]any)
	require.Len(t, trades, 1)
	assert.Equal(t, "45", trades[0].(map[string]any)["executed_price"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders?customerId="+buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decodeBody(t, w)["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, string(models.StatusFilled), orders[0].(map[string]any)["status"])
}

func TestOrderValidationAndBalanceErrors(t *testing.T) {
	s := setupTestServer(t)
	id := createTestCustomer(t, s, "Ada")
	depositTRY(t, s, id, "100")

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": id, "assetCode": "GARAN", "side": "HOLD", "size": "1", "price": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": id, "assetCode": "TRY", "side": "BUY", "size": "1", "price": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": id, "assetCode": "GARAN", "side": "BUY", "size": "10", "price": "50",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancelOrder(t *testing.T) {
	s := setupTestServer(t)
	id := createTestCustomer(t, s, "Ada")
	depositTRY(t, s, id, "1000")

	w := doJSON(t, s, http.MethodPost, "/api/v1/orders", gin.H{
		"customerId": id, "assetCode": "GARAN", "side": "BUY", "size": "10", "price": "50",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["id"].(string)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second cancel hits a non-PENDING order.
	w = doJSON(t, s, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/assets?customerId="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	asset := decodeBody(t, w)["assets"].([]any)[0].(map[string]any)
	assert.Equal(t, "1000", asset["usable_size"])
}

func TestMatchUnknownAssetCode(t *testing.T) {
	s := setupTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/match/DOGE", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, s, http.MethodPost, "/api/v1/match/TRY", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
