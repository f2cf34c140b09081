package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweetshop/backend/internal/adapter/storage"
	"github.com/sweetshop/backend/internal/adapter/token"
	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/core/service"
)

type testServer struct {
	mux    *http.ServeMux
	store  *storage.MemoryAdapter
	tokens *token.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryAdapter()
	tokens := token.NewJWTManager([]byte("test-secret"), time.Hour)

	purchases := service.NewPurchaseService(store, 100)
	t.Cleanup(purchases.Close)
	go func() {
		for range purchases.Ledger() {
		}
	}()

	h := NewHTTPHandler(
		service.NewAuthService(store, tokens),
		service.NewSweetService(store, store),
		purchases,
		tokens,
		zap.NewNop(),
	)

	mux := http.NewServeMux()
	h.Routes(mux)
	return &testServer{mux: mux, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := s.tokens.Issue(domain.User{ID: "admin-1", Role: domain.RoleAdmin})
	require.NoError(t, err)
	return tok
}

func (s *testServer) userToken(t *testing.T) string {
	t.Helper()
	tok, err := s.tokens.Issue(domain.User{ID: "user-1", Role: domain.RoleUser})
	require.NoError(t, err)
	return tok
}

func (s *testServer) seedSweet(t *testing.T, quantity int) string {
	t.Helper()
	now := time.Now()
	sweet := domain.Sweet{
		ID: "sweet-" + t.Name(), Name: "Seeded Fudge", Category: domain.CategoryChocolate,
		Price: 1.50, Quantity: quantity, InStock: quantity > 0, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.store.CreateSweet(context.Background(), sweet))
	return sweet.ID
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", `{"email":"sam@example.com","password":"sugarrush1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sam@example.com", resp["email"])
	assert.Equal(t, "user", resp["role"])

	rec = srv.do(t, http.MethodPost, "/api/auth/register", `{"email":"sam@example.com","password":"sugarrush1"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/register", `{"email":"bad","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", `{"email":"sam@example.com","password":"sugarrush1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/login", `{"email":"sam@example.com","password":"sugarrush1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])

	rec = srv.do(t, http.MethodPost, "/api/auth/login", `{"email":"sam@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSweet_RoleGate(t *testing.T) {
	srv := newTestServer(t)
	body := `{"name":"Dark Truffle","category":"chocolate","price":3.5,"quantity":12}`

	rec := srv.do(t, http.MethodPost, "/api/sweets", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/sweets", body, srv.userToken(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/sweets", body, srv.adminToken(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.InStock)
	assert.NotEmpty(t, created.ID)
}

func TestCreateSweet_Validation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/sweets",
		`{"name":"X","category":"chocolate","price":3.5,"quantity":1}`, srv.adminToken(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/sweets",
		`{"name":"Okay Name","category":"sandwich","price":3.5,"quantity":1}`, srv.adminToken(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndSearchEndpoints(t *testing.T) {
	srv := newTestServer(t)
	srv.seedSweet(t, 5)

	rec := srv.do(t, http.MethodGet, "/api/sweets", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = srv.do(t, http.MethodGet, "/api/sweets/search?name=fudge&category=chocolate&minPrice=1&maxPrice=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = srv.do(t, http.MethodGet, "/api/sweets/search?minPrice=nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedSweet(t, 10)

	// Explicit amount.
	rec := srv.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", `{"amount":3}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sweet sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sweet))
	assert.Equal(t, 7, sweet.Quantity)
	assert.True(t, sweet.InStock)

	// Absent amount defaults to 1.
	rec = srv.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sweet))
	assert.Equal(t, 6, sweet.Quantity)
}

func TestPurchaseEndpoint_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedSweet(t, 5)

	rec := srv.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", `{"amount":0}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", `{"amount":10}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Available)
	assert.Equal(t, 5, *resp.Available)

	rec = srv.do(t, http.MethodPost, "/api/sweets/missing/purchase", `{"amount":1}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseEndpoint_DepletesToOutOfStock(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedSweet(t, 1)

	rec := srv.do(t, http.MethodPost, "/api/sweets/"+id+"/purchase", `{"amount":1}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sweet sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sweet))
	assert.Equal(t, 0, sweet.Quantity)
	assert.False(t, sweet.InStock)
}

func TestRestockEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedSweet(t, 0)

	rec := srv.do(t, http.MethodPost, "/api/sweets/"+id+"/restock", `{"amount":10}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/sweets/"+id+"/restock", `{"amount":10}`, srv.adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var sweet sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sweet))
	assert.Equal(t, 10, sweet.Quantity)
	assert.True(t, sweet.InStock)
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedSweet(t, 5)
	admin := srv.adminToken(t)

	rec := srv.do(t, http.MethodPut, "/api/sweets/"+id,
		`{"name":"Renamed Fudge","category":"chocolate","price":2.0,"quantity":0}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var sweet sweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sweet))
	assert.Equal(t, "Renamed Fudge", sweet.Name)
	assert.False(t, sweet.InStock)

	rec = srv.do(t, http.MethodDelete, "/api/sweets/"+id, "", admin)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/sweets/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/sweets/"+id, "", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
