package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/middleware"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB opens a fresh in-memory database with every model migrated and installs it globally
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := config.OpenDatabase("sqlite::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	originalDB := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(originalDB)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TaxRate:              decimal.RequireFromString("0.08"),
		TaxPolicy:            "pre_discount",
		DeliveryFee:          decimal.RequireFromString("5.00"),
		PointsConversionRate: decimal.RequireFromString("0.10"),
		OverpaymentPolicy:    "clamp",
		RejectInvalidPromo:   true,
		RetryMaxAttempts:     3,
		RetryBackoffMS:       1,
		SnowflakeNode:        1,
	}
}

// setupTestEngine installs an engine over db that records the events it publishes
func setupTestEngine(t *testing.T, db *gorm.DB) (*services.Engine, *services.RecordingNotifier) {
	notifier := services.NewRecordingNotifier()
	e, err := services.NewEngine(db, zap.NewNop(), notifier, testEngineConfig())
	require.NoError(t, err)

	original := services.GetEngine()
	services.SetEngine(e)
	t.Cleanup(func() { services.SetEngine(original) })
	return e, notifier
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		token := authHeader[7:] // Remove "Bearer " prefix

		// Look up user info by token
		userInfo, exists := userInfoMap[token]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	}))
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing
// It sets up the context exactly as the real EnsureValidToken middleware does
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Set the user_id (Auth0 ID from 'sub' claim)
		c.Set("user_id", auth0ID)

		// Set the access token for calling /userinfo
		c.Set("access_token", accessToken)

		customClaims := &middleware.CustomClaims{
			Role: role,
		}
		mockClaims := &validator.ValidatedClaims{
			CustomClaims: customClaims,
		}
		c.Set("validated_claims", mockClaims)

		c.Next()
	}
}

// asSubject only sets the token subject, for handlers behind LoadCurrentUser
func asSubject(auth0ID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Next()
	}
}

// authAs authenticates requests as a stored user and loads their profile
func authAs(user models.User) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		mockAuthMiddleware(user.Auth0ID, user.Role, "token-"+user.Auth0ID),
		middleware.LoadCurrentUser(),
	}
}

func createTestUser(t *testing.T, db *gorm.DB, auth0ID, name, email, role string) models.User {
	user := models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   email,
		Role:    role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func performJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "body: %s", w.Body.String())
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	response := decodeResponse(t, w)
	errData, ok := response["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got: %s", w.Body.String())
	return errData["code"].(string)
}

func idString(data map[string]interface{}) string {
	return strconv.FormatUint(uint64(data["id"].(float64)), 10)
}
