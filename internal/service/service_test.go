package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vharitonov/marketplace/internal/events"
	"github.com/vharitonov/marketplace/internal/hash"
	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/repo"
	"github.com/vharitonov/marketplace/internal/upload"
)

var (
	testJWTSecret     = []byte("test-jwt-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

func newTestRepo(t *testing.T) *repo.GormRepo {
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
	return &repo.GormRepo{DB: db}
}

func newAuthService(t *testing.T) *AuthService {
	t.Helper()

	return &AuthService{
		Repo:          newTestRepo(t),
		JWTSecret:     testJWTSecret,
		RefreshSecret: testRefreshSecret,
		Events:        &events.Producer{},
	}
}

func newCatalogService(t *testing.T) *CatalogService {
	t.Helper()

	images, err := upload.NewStore(t.TempDir())
	require.NoError(t, err)
	return &CatalogService{
		Repo:   newTestRepo(t),
		Images: images,
		Events: &events.Producer{},
	}
}

func createUser(t *testing.T, r *repo.GormRepo, username, email string, role models.Role) *models.User {
	t.Helper()

	pwHash, err := hash.HashPassword("pw")
	require.NoError(t, err)
	user := models.User{Username: username, Email: email, PasswordHash: pwHash, Role: role}
	require.NoError(t, r.DB.Create(&user).Error)
	return &user
}

func createProduct(t *testing.T, r *repo.GormRepo, vendorID uint, name string, price float64) *models.Product {
	t.Helper()

	product := models.Product{Name: name, Price: price, VendorID: vendorID}
	require.NoError(t, r.DB.Create(&product).Error)
	return &product
}
