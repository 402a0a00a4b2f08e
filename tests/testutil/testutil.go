package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// RequireTestEnvironmentOrSkip is similar to RequireTestEnvironment but skips the test
// instead of failing it. Use this for optional tests that should only run in test environment.
func RequireTestEnvironmentOrSkip(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Skipf("Skipping test: GO_ENV must be 'test' (current: %q)", env)
	}
}

// PrintEnvironmentInfo prints the current test environment configuration.
// Useful for debugging test environment issues.
func PrintEnvironmentInfo() {
	fmt.Printf("Test Environment Info:\n")
	fmt.Printf("  GO_ENV: %s\n", os.Getenv("GO_ENV"))
	fmt.Printf("  DATABASE_URL: %s\n", MaskDatabaseURL(os.Getenv("DATABASE_URL")))
	fmt.Printf("  NOTIFIER: %s\n", os.Getenv("NOTIFIER"))
}

// MaskDatabaseURL hides credentials in a database URL for safe printing
func MaskDatabaseURL(url string) string {
	if url == "" {
		return "(not set)"
	}
	if strings.HasPrefix(url, "sqlite:") {
		return url
	}
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}

// EngineConfig is the engine configuration tests run with: 8% tax on the
// pre-discount subtotal, 5.00 delivery, 0.10 per point, overpayments clamped
func EngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TaxRate:              decimal.RequireFromString("0.08"),
		TaxPolicy:            "pre_discount",
		DeliveryFee:          decimal.RequireFromString("5.00"),
		PointsConversionRate: decimal.RequireFromString("0.10"),
		OverpaymentPolicy:    "clamp",
		RejectInvalidPromo:   true,
		RetryMaxAttempts:     5,
		RetryBackoffMS:       1,
		SnowflakeNode:        7,
	}
}

// NewTestDB opens a migrated in-memory SQLite database and installs it as the
// global database until the test ends
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	original := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(original)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewTestEngine installs an engine over db that records published events
func NewTestEngine(t testing.TB, db *gorm.DB, cfg config.EngineConfig) (*services.Engine, *services.RecordingNotifier) {
	t.Helper()

	notifier := services.NewRecordingNotifier()
	engine, err := services.NewEngine(db, zap.NewNop(), notifier, cfg)
	require.NoError(t, err)

	original := services.GetEngine()
	services.SetEngine(engine)
	t.Cleanup(func() { services.SetEngine(original) })
	return engine, notifier
}

// CreateUser stores a registered user with the given role
func CreateUser(t testing.TB, db *gorm.DB, auth0ID, name, role string) models.User {
	t.Helper()

	user := models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:    role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}
