package main

import (
	"net/http"
	"testing"

	"github.com/kendall-kelly/bistro-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUsers(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, u := range []models.User{
		{Auth0ID: "auth0|customer", Name: "Test Customer", Email: "customer@test.com", Role: models.RoleCustomer},
		{Auth0ID: "auth0|staff", Name: "Test Staff", Email: "staff@test.com", Role: models.RoleStaff},
		{Auth0ID: "auth0|admin", Name: "Test Admin", Email: "admin@test.com", Role: models.RoleAdmin},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
}

// TestHealthEndpointIntegration tests the /api/v1/health endpoint with full routing
func TestHealthEndpointIntegration(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status 200 OK")
	assert.Contains(t, w.Body.String(), "Bistro API is running")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"), "Every response carries a request ID")
}

// TestHealthEndpointMethod tests that only GET method is allowed
func TestHealthEndpointMethod(t *testing.T) {
	router := newTestRouter()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		w := doRequest(router, method, "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s should not be allowed", method)
	}
}

// TestAPIV1Prefix tests that the endpoint requires /api/v1 prefix
func TestAPIV1Prefix(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "Endpoint should require /api/v1 prefix")

	w = doRequest(router, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "Endpoint should work with /api/v1 prefix")
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := doRequestWith(router, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter()

	req, _ := http.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "https://bistro.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := doRequestWith(router, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPublicMenuNeedsNoToken(t *testing.T) {
	setupRootDB(t)
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/products", "", map[string]interface{}{"name": "Soup"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouteAuthorization(t *testing.T) {
	db := setupRootDB(t)
	seedUsers(t, db)
	router := newTestRouter()

	tests := []struct {
		name           string
		method         string
		path           string
		subject        string
		expectedStatus int
	}{
		{"No token", http.MethodGet, "/api/v1/orders", "", http.StatusUnauthorized},
		{"Unregistered subject", http.MethodGet, "/api/v1/orders", "auth0|ghost", http.StatusForbidden},
		{"Customer lists own orders", http.MethodGet, "/api/v1/orders", "auth0|customer", http.StatusOK},
		{"Customer reads own profile", http.MethodGet, "/api/v1/users/me", "auth0|customer", http.StatusOK},
		{"Customer reads own balance", http.MethodGet, "/api/v1/fidelity/customers/me/balance", "auth0|customer", http.StatusOK},
		{"Customer reads earning rules", http.MethodGet, "/api/v1/fidelity/rules", "auth0|customer", http.StatusOK},
		{"Customer cannot see kitchen", http.MethodGet, "/api/v1/kitchen/queue", "auth0|customer", http.StatusForbidden},
		{"Customer cannot confirm payments", http.MethodPost, "/api/v1/payments/1/confirm", "auth0|customer", http.StatusForbidden},
		{"Customer cannot transition", http.MethodPost, "/api/v1/orders/1/transition", "auth0|customer", http.StatusForbidden},
		{"Staff sees kitchen", http.MethodGet, "/api/v1/kitchen/queue", "auth0|staff", http.StatusOK},
		{"Staff cannot manage promos", http.MethodGet, "/api/v1/promo-codes", "auth0|staff", http.StatusForbidden},
		{"Staff cannot archive", http.MethodDelete, "/api/v1/orders/1", "auth0|staff", http.StatusForbidden},
		{"Admin manages promos", http.MethodGet, "/api/v1/promo-codes", "auth0|admin", http.StatusOK},
		{"Admin sees kitchen", http.MethodGet, "/api/v1/kitchen/queue", "auth0|admin", http.StatusOK},
		{"Admin archive of unknown order", http.MethodDelete, "/api/v1/orders/999", "auth0|admin", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, tt.subject, nil)
			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())
		})
	}
}
