package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/testutil"

	apperrors "storefront/internal/errors"
)

const (
	adminEmail    = "admin@shop.example"
	adminPassword = "admin-pass"
)

// memoryDenyList keeps revoked token ids in a map.
type memoryDenyList struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memoryDenyList) Revoke(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = true
	return nil
}

func (m *memoryDenyList) IsRevoked(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id]
}

type testApp struct {
	t  *testing.T
	e  *echo.Echo
	db *gorm.DB
}

type appOptions struct {
	leadsPerMinute float64
	// denyList replaces the in-memory deny-list when set.
	denyList auth.TokenDenyList
	// products wraps the sqlite product repository when set.
	products func(repository.ProductRepository) repository.ProductRepository
}

func newTestApp(t *testing.T, leadsPerMinute float64) *testApp {
	return newTestAppWith(t, appOptions{leadsPerMinute: leadsPerMinute})
}

func newTestAppWith(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	gdb := testutil.NewDB(t)
	cfg := &config.Config{
		CORSOrigins:    []string{"*"},
		LeadsRateLimit: opts.leadsPerMinute,
		JWT:            config.JWT{Secret: "test-secret", Issuer: "storefront", TTL: time.Hour},
	}
	log := zerolog.Nop()
	m := metrics.New("storefront_test")

	var denyList auth.TokenDenyList = &memoryDenyList{ids: map[string]bool{}}
	if opts.denyList != nil {
		denyList = opts.denyList
	}
	productRepo := repository.NewProductRepository(gdb)
	if opts.products != nil {
		productRepo = opts.products(productRepo)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	authService := service.NewAuthService(repository.NewUserRepository(gdb), jwtService, denyList, bcrypt.MinCost)
	productService := service.NewProductService(productRepo, log)
	leadService := service.NewLeadService(repository.NewLeadRepository(gdb))

	_, _, err := authService.EnsureAdmin(context.Background(), adminEmail, adminPassword)
	require.NoError(t, err)

	e := echo.New()
	Register(e, Deps{
		Config:         cfg,
		DB:             gdb,
		Logger:         log,
		Metrics:        m,
		Guard:          auth.NewGuard(jwtService, denyList),
		AuthHandler:    handler.NewAuthHandler(authService, jwtService.TTL(), m),
		ProductHandler: handler.NewProductHandler(productService),
		LeadHandler:    handler.NewLeadHandler(leadService, m),
	})
	return &testApp{t: t, e: e, db: gdb}
}

func (a *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(email, password string) string {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.AuthResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(a.t, resp.AccessToken)
	return resp.AccessToken
}

func (a *testApp) registerAndLogin(email, password string) string {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return a.login(email, password)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

type productView struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    *string         `json:"image_url"`
}

func TestRegister(t *testing.T) {
	app := newTestApp(t, 0)

	rec := app.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "dana@example.com", "password": "pw123456"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created handler.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "dana@example.com", created.User.Email)
	assert.Equal(t, "user", string(created.User.Role))
	assert.NotContains(t, rec.Body.String(), "password")

	rec = app.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "dana@example.com", "password": "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_ALREADY_EXISTS", decodeError(t, rec).Code)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing password", map[string]string{"email": "x@example.com"}},
		{"missing email", map[string]string{"password": "pw"}},
		{"not an email", map[string]string{"email": "nope", "password": "pw"}},
		{"malformed json", `{"email":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
		})
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, 0)
	token := app.registerAndLogin("dana@example.com", "pw123456")

	rec := app.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"dana@example.com"`)

	rec = app.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handler.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin", string(resp.Role))
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	// Unknown email and wrong password are indistinguishable.
	wrongPassword := app.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dana@example.com", "password": "bad"})
	unknownEmail := app.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())

	rec = app.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dana@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	app := newTestApp(t, 0)
	token := app.registerAndLogin("dana@example.com", "pw123456")

	rec := app.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A fresh login still works.
	fresh := app.login("dana@example.com", "pw123456")
	rec = app.do(http.MethodGet, "/api/auth/me", fresh, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProducts_AccessControl(t *testing.T) {
	app := newTestApp(t, 0)
	userToken := app.registerAndLogin("dana@example.com", "pw123456")
	body := map[string]interface{}{"name": "Mug", "description": "Ceramic", "price": 12.5}

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"create without token", http.MethodPost, "/api/products", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"create with garbage token", http.MethodPost, "/api/products", "not-a-jwt", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"create as user", http.MethodPost, "/api/products", userToken, http.StatusForbidden, "FORBIDDEN"},
		{"update as user", http.MethodPut, "/api/products/1", userToken, http.StatusForbidden, "FORBIDDEN"},
		{"delete as user", http.MethodDelete, "/api/products/1", userToken, http.StatusForbidden, "FORBIDDEN"},
		{"leads as user", http.MethodGet, "/api/admin/leads", userToken, http.StatusForbidden, "FORBIDDEN"},
		{"leads without token", http.MethodGet, "/api/admin/leads", "", http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}

	rec := app.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestProducts_Lifecycle(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.login(adminEmail, adminPassword)

	rec := app.do(http.MethodPost, "/api/products", admin, `{"name":"Olive oil","description":"Cold pressed","price":19.99,"image_url":"https://cdn.example/oil.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Product productView `json:"product"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Product.ID
	require.NotZero(t, id)
	path := "/api/products/" + strconv.FormatUint(uint64(id), 10)

	rec = app.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got productView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")), got.Price.String())
	assert.Equal(t, "כללי", got.Category)
	require.NotNil(t, got.ImageURL)

	// Full replace clears fields that are not sent.
	rec = app.do(http.MethodPut, path, admin, `{"name":"Olive oil","description":"750ml","price":17.25,"category":"pantry"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, path, "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "750ml", got.Description)
	assert.Equal(t, "pantry", got.Category)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("17.25")), got.Price.String())
	assert.Nil(t, got.ImageURL)

	rec = app.do(http.MethodGet, "/api/products", "", nil)
	var list []productView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = app.do(http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows_affected":1`)

	rec = app.do(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", decodeError(t, rec).Code)
}

func TestProducts_MissingIDStillSucceeds(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.login(adminEmail, adminPassword)

	rec := app.do(http.MethodPut, "/api/products/999", admin, map[string]interface{}{"name": "x", "description": "y", "price": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows_affected":0`)

	rec = app.do(http.MethodDelete, "/api/products/999", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows_affected":0`)
}

func TestProducts_Validation(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.login(adminEmail, adminPassword)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"missing price", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic"}`},
		{"missing name", http.MethodPost, "/api/products", `{"description":"Ceramic","price":3}`},
		{"negative price", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic","price":-1}`},
		{"price too large", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic","price":100000000}`},
		{"price not a number", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic","price":"cheap"}`},
		{"price with absurd negative exponent", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic","price":1e-50000000}`},
		{"price with absurd positive exponent", http.MethodPost, "/api/products", `{"name":"Mug","description":"Ceramic","price":1e999999999}`},
		{"replace with absurd exponent", http.MethodPut, "/api/products/1", `{"name":"Mug","description":"Ceramic","price":1e-999999999}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := app.do(http.MethodGet, "/api/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeads(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.login(adminEmail, adminPassword)

	rec := app.do(http.MethodPost, "/api/leads", "", map[string]string{"name": "Avi", "email": "avi@example.com", "message": "call me"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/api/leads", "", map[string]string{"name": "Dana", "email": "d@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, "/api/leads", "", map[string]string{"name": "NoMail"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(http.MethodGet, "/api/admin/leads", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var leads []handler.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leads))
	require.Len(t, leads, 2)
	assert.Equal(t, "Dana", leads[0].Name)
	assert.Nil(t, leads[0].Message)
	assert.Equal(t, "Avi", leads[1].Name)
	require.NotNil(t, leads[1].Message)
	assert.Equal(t, "call me", *leads[1].Message)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, leads[0].CreatedAt)
	assert.Contains(t, rec.Body.String(), `"message":null`)
}

func TestLeads_RateLimited(t *testing.T) {
	app := newTestApp(t, 1)
	body := map[string]string{"name": "Avi", "email": "avi@example.com"}

	rec := app.do(http.MethodPost, "/api/leads", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(http.MethodPost, "/api/leads", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)
}

func TestOperationalRoutes(t *testing.T) {
	app := newTestApp(t, 0)

	rec := app.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	app.do(http.MethodGet, "/api/products", "", nil)
	rec = app.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_test_http_requests_total")

	rec = app.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

// failingProducts reads from sqlite but every delete fails with a driver error.
type failingProducts struct {
	repository.ProductRepository
	err error
}

func (f failingProducts) Delete(context.Context, uint) (int64, error) {
	return 0, f.err
}

func TestProducts_StoreFailureIsGeneric(t *testing.T) {
	cause := errors.New("Error 1205 (HY000): Lock wait timeout exceeded on storefront.products")
	app := newTestAppWith(t, appOptions{
		products: func(r repository.ProductRepository) repository.ProductRepository {
			return failingProducts{ProductRepository: r, err: cause}
		},
	})
	admin := app.login(adminEmail, adminPassword)

	rec := app.do(http.MethodDelete, "/api/products/1", admin, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"INTERNAL_ERROR"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "1205")
	assert.NotContains(t, rec.Body.String(), "storefront.products")
}

func TestLogout_UnreachableRedisFails(t *testing.T) {
	// Nothing listens on port 1.
	redisClient := cache.New("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = redisClient.Close() })
	app := newTestAppWith(t, appOptions{denyList: auth.NewTokenStore(redisClient)})
	token := app.login(adminEmail, adminPassword)

	rec := app.do(http.MethodPost, "/api/auth/logout", token, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
	assert.NotContains(t, rec.Body.String(), "logged out")
	assert.NotContains(t, rec.Body.String(), "127.0.0.1")
}

func TestHealthz_HidesDatabaseError(t *testing.T) {
	app := newTestApp(t, 0)
	sqlDB, err := app.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec := app.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"unavailable"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sql:")
}
