package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sanctum/pkg/domain"
)

type stubValidator struct {
	claims *TokenClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*TokenClaims, error) {
	return v.claims, v.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth_PopulatesContext(t *testing.T) {
	userID := uuid.New().String()
	validator := stubValidator{claims: &TokenClaims{UserID: userID, DeviceID: "device-9"}}

	var gotUser id.UserID
	var gotDevice id.DeviceID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotDevice = GetDeviceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()

	RequireAuth(validator, discardLogger())(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, gotUser.String())
	assert.Equal(t, id.DeviceID("device-9"), gotDevice)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RequireAuth(stubValidator{}, discardLogger())(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	validator := stubValidator{err: errors.New("expired")}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()

	RequireAuth(validator, discardLogger())(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestRequireAuth_MalformedClaims(t *testing.T) {
	validator := stubValidator{claims: &TokenClaims{UserID: "not-a-uuid"}}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()

	RequireAuth(validator, discardLogger())(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserID_EmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.True(t, GetUserID(req.Context()).IsNil())
	assert.Equal(t, id.DeviceID(""), GetDeviceID(req.Context()))
}
