package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bms-fs/order-core/internal/auth"
	"github.com/bms-fs/order-core/internal/enum"
)

const testJWTSecret = "test-secret-for-handlers"

type testUser struct {
	UserID string
	ShopID string
	Role   string
}

var (
	customer  = testUser{UserID: "u-1", Role: enum.UserRoleCustomer}
	shopStaff = testUser{UserID: "s-1", ShopID: "shop-1", Role: enum.UserRoleStaff}
)

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, user testUser) *httptest.ResponseRecorder {
	t.Helper()

	// Generate a real JWT token for the user
	token, err := auth.GenerateToken(testJWTSecret, user.UserID, user.ShopID, user.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type testEnvelope struct {
	IsSuccess bool            `json:"isSuccess"`
	Data      json.RawMessage `json:"data"`
	Messages  []string        `json:"messages"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) testEnvelope {
	t.Helper()
	env := decodeEnvelope(t, rr)
	if !env.IsSuccess {
		t.Fatalf("expected success, got messages %v", env.Messages)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return env
}

func mustToken(t *testing.T, user testUser) string {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, user.UserID, user.ShopID, user.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func newRecorder(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
