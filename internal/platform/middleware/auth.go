package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "sanctum/pkg/domain"
)

// TokenValidator validates bearer tokens presented by messaging clients.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims carries the identity claims the consent service relies on.
type TokenClaims struct {
	UserID   string
	DeviceID string
}

type contextKeyUserID struct{}
type contextKeyDeviceID struct{}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(contextKeyUserID{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// GetDeviceID retrieves the granting device ID from the context.
func GetDeviceID(ctx context.Context) id.DeviceID {
	if deviceID, ok := ctx.Value(contextKeyDeviceID{}).(id.DeviceID); ok {
		return deviceID
	}
	return ""
}

// WithUserID returns a context carrying the user ID. Exported for tests.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, contextKeyUserID{}, userID)
}

// WithDeviceID returns a context carrying the device ID. Exported for tests.
func WithDeviceID(ctx context.Context, deviceID id.DeviceID) context.Context {
	return context.WithValue(ctx, contextKeyDeviceID{}, deviceID)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and populates the context with the
// caller's typed user ID and device ID. Every consent operation is attributed
// to the device that signed the request.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = WithUserID(ctx, userID)
			if claims.DeviceID != "" {
				ctx = WithDeviceID(ctx, id.DeviceID(claims.DeviceID))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
