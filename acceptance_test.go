package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/bistro-api/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiClient talks to a running test server as one token subject
type apiClient struct {
	t       *testing.T
	baseURL string
	subject string
}

func (a apiClient) do(method, path string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req, err := http.NewRequest(method, a.baseURL+"/api/v1"+path, bytes.NewReader(payload))
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.subject)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var response map[string]interface{}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&response))
	return resp.StatusCode, response
}

func (a apiClient) data(method, path string, body interface{}, expectedStatus int) map[string]interface{} {
	a.t.Helper()
	status, response := a.do(method, path, body)
	require.Equal(a.t, expectedStatus, status, "%s %s: %v", method, path, response)
	data, _ := response["data"].(map[string]interface{})
	return data
}

// mockUserInfo serves Auth0's /userinfo, treating the bearer token as the subject
func mockUserInfo(profiles map[string]map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if len(token) < 8 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		profile, ok := profiles[token[7:]]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(profile)
	}))
}

// TestAPIHealthEndpointAcceptance verifies a real HTTP round trip to the health endpoint
func TestAPIHealthEndpointAcceptance(t *testing.T) {
	server := httptest.NewServer(newTestRouter())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "Health endpoint should return 200 OK")

	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, "Bistro API is running", response.Message)
}

// TestOrderLifecycleAcceptance walks one dinner from sign-up to completion
func TestOrderLifecycleAcceptance(t *testing.T) {
	db := setupRootDB(t)

	auth0 := mockUserInfo(map[string]map[string]string{
		"auth0|alice": {"sub": "auth0|alice", "name": "Alice", "email": "alice@example.com"},
		"auth0|chef":  {"sub": "auth0|chef", "name": "Chef", "email": "chef@example.com"},
		"auth0|boss":  {"sub": "auth0|boss", "name": "Boss", "email": "boss@example.com"},
	})
	defer auth0.Close()

	originalConfig := config.GetConfig()
	config.SetConfig(&config.Config{Auth0Domain: auth0.URL})
	defer config.SetConfig(originalConfig)

	server := httptest.NewServer(newTestRouter())
	defer server.Close()

	alice := apiClient{t: t, baseURL: server.URL, subject: "auth0|alice"}
	chef := apiClient{t: t, baseURL: server.URL, subject: "auth0|chef"}
	boss := apiClient{t: t, baseURL: server.URL, subject: "auth0|boss"}

	// Everyone signs up; roles are granted out of band
	for _, c := range []apiClient{alice, chef, boss} {
		c.data(http.MethodPost, "/users", nil, http.StatusCreated)
	}
	require.NoError(t, db.Exec("UPDATE users SET role = 'staff' WHERE auth0_id = ?", "auth0|chef").Error)
	require.NoError(t, db.Exec("UPDATE users SET role = 'admin' WHERE auth0_id = ?", "auth0|boss").Error)

	// The admin sets up the menu and a loyalty rule
	product := chef.data(http.MethodPost, "/products", map[string]interface{}{"name": "Risotto", "category": "mains", "price": "25.00"}, http.StatusCreated)
	boss.data(http.MethodPost, "/fidelity/rules", map[string]interface{}{"name": "Any", "min_order_amount": "0", "points_awarded": 20}, http.StatusCreated)

	// Alice orders two risottos for delivery
	order := alice.data(http.MethodPost, "/orders", map[string]interface{}{
		"order_type":       "delivery",
		"delivery_address": "1 Main Street",
		"items": []map[string]interface{}{
			{"product_id": product["id"], "product_name": "Risotto", "quantity": 2, "unit_price": "25.00"},
		},
	}, http.StatusCreated)
	orderPath := fmt.Sprintf("/orders/%d", uint(order["id"].(float64)))
	assert.Equal(t, "pending", order["status"])
	// 50 + 4 tax + 5 delivery
	assert.Equal(t, "59", fmt.Sprint(order["total"]))

	byNumber := alice.data(http.MethodGet, "/orders/number/"+order["order_number"].(string), nil, http.StatusOK)
	assert.Equal(t, order["id"], byNumber["id"])

	// The kitchen confirms and starts cooking
	chef.data(http.MethodPost, orderPath+"/transition", map[string]interface{}{"status": "confirmed"}, http.StatusOK)
	_, queue := chef.do(http.MethodGet, "/kitchen/queue", nil)
	assert.Len(t, queue["data"], 1)
	chef.data(http.MethodPost, orderPath+"/transition", map[string]interface{}{"status": "preparing"}, http.StatusOK)

	balance := alice.data(http.MethodGet, "/fidelity/customers/me/balance", nil, http.StatusOK)
	assert.Equal(t, float64(20), balance["balance"].(map[string]interface{})["current_points"])

	// Alice pays online and the payment is confirmed
	payment := alice.data(http.MethodPost, orderPath+"/payments", map[string]interface{}{"amount": "59", "method": "online"}, http.StatusCreated)
	settled := chef.data(http.MethodPost, fmt.Sprintf("/payments/%d/confirm", uint(payment["id"].(float64))), nil, http.StatusOK)
	assert.Equal(t, "paid", settled["order"].(map[string]interface{})["payment_status"])

	// Delivered
	chef.data(http.MethodPost, orderPath+"/transition", map[string]interface{}{"status": "ready"}, http.StatusOK)
	chef.data(http.MethodPost, orderPath+"/transition", map[string]interface{}{"status": "completed"}, http.StatusOK)

	final := alice.data(http.MethodGet, orderPath, nil, http.StatusOK)
	assert.Equal(t, "completed", final["status"])
	assert.Equal(t, "0", fmt.Sprint(final["remaining_amount"]))

	_, history := alice.do(http.MethodGet, orderPath+"/history", nil)
	assert.Len(t, history["data"], 5)

	// Only the admin can archive, and only finished orders
	status, _ := chef.do(http.MethodDelete, orderPath, nil)
	assert.Equal(t, http.StatusForbidden, status)
	boss.data(http.MethodDelete, orderPath, nil, http.StatusOK)
	status, _ = alice.do(http.MethodGet, orderPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
