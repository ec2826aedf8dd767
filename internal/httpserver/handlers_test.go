package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vharitonov/marketplace/internal/events"
	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/repo"
	"github.com/vharitonov/marketplace/internal/service"
	"github.com/vharitonov/marketplace/internal/session"
	"github.com/vharitonov/marketplace/internal/upload"
)

var (
	testJWTSecret     = []byte("test-jwt-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

type testEnv struct {
	t      *testing.T
	e      *echo.Echo
	db     *gorm.DB
	images *upload.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// one connection, or every pooled conn gets its own :memory: database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.CartItem{}, &models.RefreshToken{},
	))

	images, err := upload.NewStore(t.TempDir())
	require.NoError(t, err)

	gormRepo := &repo.GormRepo{DB: db}
	producer := &events.Producer{}
	authSvc := &service.AuthService{
		Repo:          gormRepo,
		JWTSecret:     testJWTSecret,
		RefreshSecret: testRefreshSecret,
		Events:        producer,
	}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:    &AuthHandler{Svc: authSvc},
		ProductHandler: &ProductHandler{Svc: &service.CatalogService{Repo: gormRepo, Images: images, Events: producer}, Images: images},
		CartHandler:    &CartHandler{Svc: &service.CartService{Repo: gormRepo, Events: producer}},
		Session:        &session.Middleware{Auth: authSvc, JWTSecret: testJWTSecret},
		UploadDir:      images.Dir,
	})

	return &testEnv{t: t, e: e, db: db, images: images}
}

func (env *testEnv) doJSON(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) register(username, email, password, role string) {
	env.t.Helper()

	rec := env.doJSON(http.MethodPost, "/api/v1/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
		"role":     role,
	})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (env *testEnv) login(email, password string) []*http.Cookie {
	env.t.Helper()

	rec := env.doJSON(http.MethodPost, "/api/v1/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(env.t, cookies)
	return cookies
}

func (env *testEnv) createProduct(cookies []*http.Cookie, name, price, description string, image []byte) *httptest.ResponseRecorder {
	env.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(env.t, w.WriteField("name", name))
	require.NoError(env.t, w.WriteField("price", price))
	require.NoError(env.t, w.WriteField("description", description))
	if image != nil {
		fw, err := w.CreateFormFile("image", name+".png")
		require.NoError(env.t, err)
		_, err = fw.Write(image)
		require.NoError(env.t, err)
	}
	require.NoError(env.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/products", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeProducts(t *testing.T, rec *httptest.ResponseRecorder) []models.Product {
	t.Helper()

	var items []models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	return items
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")

	rec := env.doJSON(http.MethodPost, "/api/v1/register", map[string]string{
		"username": "other", "email": "a@x.com", "password": "pw2", "role": "customer",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_RejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodPost, "/api/v1/register", map[string]string{
		"username": "mallory", "email": "m@x.com", "password": "pw", "role": "admin",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_BadPassword(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")

	rec := env.doJSON(http.MethodPost, "/api/v1/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProducts_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVendorRoutes_ForbiddenForCustomer(t *testing.T) {
	env := newTestEnv(t)

	env.register("bob", "b@x.com", "pw", "customer")
	cookies := env.login("b@x.com", "pw")

	rec := env.createProduct(cookies, "Widget", "9.99", "desc", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/v1/vendor/products", nil, cookies...)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateProduct_PriceMustBeNumeric(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")
	cookies := env.login("a@x.com", "pw")

	rec := env.createProduct(cookies, "Widget", "not-a-price", "desc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.createProduct(cookies, "Widget", "-5", "desc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProduct_OtherVendorForbidden(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")
	env.register("carol", "c@x.com", "pw", "vendor")

	aliceCookies := env.login("a@x.com", "pw")
	rec := env.createProduct(aliceCookies, "Widget", "9.99", "desc", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var product models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))

	carolCookies := env.login("c@x.com", "pw")
	rec = env.doJSON(http.MethodDelete, fmt.Sprintf("/api/v1/vendor/products/%d", product.ID), nil, carolCookies...)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVendorFlow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")
	cookies := env.login("a@x.com", "pw")

	rec := env.createProduct(cookies, "Widget", "9.99", "desc", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var product models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, "Widget", product.Name)
	assert.Equal(t, 9.99, product.Price)
	assert.Equal(t, "Widget.png", product.Image)

	_, err := os.Stat(filepath.Join(env.images.Dir, product.Image))
	require.NoError(t, err, "uploaded image must land in the store")

	rec = env.doJSON(http.MethodGet, "/api/v1/vendor/products", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeProducts(t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].Name)
	assert.Equal(t, 9.99, items[0].Price)

	rec = env.doJSON(http.MethodDelete, fmt.Sprintf("/api/v1/vendor/products/%d", product.ID), nil, cookies...)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/v1/vendor/products", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeProducts(t, rec))

	_, err = os.Stat(filepath.Join(env.images.Dir, "Widget.png"))
	assert.True(t, os.IsNotExist(err), "image must be removed with the product")
}

func TestCustomerFlow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")
	vendorCookies := env.login("a@x.com", "pw")
	rec := env.createProduct(vendorCookies, "Widget", "9.99", "desc", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var product models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))

	env.register("bob", "b@x.com", "pw", "customer")
	cookies := env.login("b@x.com", "pw")

	rec = env.doJSON(http.MethodGet, "/api/v1/products", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeProducts(t, rec), 1)

	rec = env.doJSON(http.MethodPost, fmt.Sprintf("/api/v1/cart/%d", product.ID), nil, cookies...)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSON(http.MethodGet, "/api/v1/cart", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeProducts(t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, product.ID, items[0].ID)

	rec = env.doJSON(http.MethodDelete, fmt.Sprintf("/api/v1/cart/%d", product.ID), nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	var removeResp RemoveFromCartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removeResp))
	assert.True(t, removeResp.Removed)

	rec = env.doJSON(http.MethodGet, "/api/v1/cart", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeProducts(t, rec))

	// removing again is a no-op, not an error
	rec = env.doJSON(http.MethodDelete, fmt.Sprintf("/api/v1/cart/%d", product.ID), nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removeResp))
	assert.False(t, removeResp.Removed)
}

func TestAddToCart_MissingProduct(t *testing.T) {
	env := newTestEnv(t)

	env.register("bob", "b@x.com", "pw", "customer")
	cookies := env.login("b@x.com", "pw")

	rec := env.doJSON(http.MethodPost, "/api/v1/cart/999", nil, cookies...)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_RefreshCookieAloneRotates(t *testing.T) {
	env := newTestEnv(t)

	env.register("bob", "b@x.com", "pw", "customer")
	cookies := env.login("b@x.com", "pw")

	var refresh *http.Cookie
	for _, ck := range cookies {
		if ck.Name == session.RefreshCookie {
			refresh = ck
		}
	}
	require.NotNil(t, refresh)

	rec := env.doJSON(http.MethodGet, "/api/v1/dashboard", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fresh []*http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Value != "" {
			fresh = append(fresh, ck)
		}
	}
	require.Len(t, fresh, 2, "rotation must reset both cookies")

	// the consumed refresh token is dead
	rec = env.doJSON(http.MethodGet, "/api/v1/dashboard", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_KillsSession(t *testing.T) {
	env := newTestEnv(t)

	env.register("bob", "b@x.com", "pw", "customer")
	cookies := env.login("b@x.com", "pw")

	rec := env.doJSON(http.MethodPost, "/api/v1/logout", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	var refresh *http.Cookie
	for _, ck := range cookies {
		if ck.Name == session.RefreshCookie {
			refresh = ck
		}
	}
	require.NotNil(t, refresh)

	// access token may still be unexpired; the refresh path must be closed
	rec = env.doJSON(http.MethodGet, "/api/v1/dashboard", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard_ReturnsCurrentUser(t *testing.T) {
	env := newTestEnv(t)

	env.register("alice", "a@x.com", "pw", "vendor")
	cookies := env.login("a@x.com", "pw")

	rec := env.doJSON(http.MethodGet, "/api/v1/dashboard", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.RoleVendor, user.Role)
	assert.Empty(t, user.PasswordHash, "hash must never serialize")
}
