package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_checkout/internal/session"
)

type contextKey string

const (
	identityKey  contextKey = "identity"
	sessionKeyCK contextKey = "session_key"
	requestIDKey contextKey = "request_id"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the bearer token into an identity snapshot.
// Requests without a token proceed as guests keyed by the X-Session-ID
// header, so guest carts survive across calls.
func AuthMiddleware(provider session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)

			identity := session.Identity{Status: session.StatusGuest}
			if token != "" {
				resolved, err := provider.Identity(r.Context(), token)
				if err != nil {
					respondError(w, http.StatusUnauthorized, "unauthenticated", "session could not be verified")
					return
				}
				identity = resolved
			}

			key := identity.UserID
			if key == "" {
				key = r.Header.Get("X-Session-ID")
			}
			if key == "" {
				respondError(w, http.StatusBadRequest, "missing_session", "X-Session-ID header is required for guest requests")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			ctx = context.WithValue(ctx, sessionKeyCK, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func identityFromContext(ctx context.Context) session.Identity {
	if id, ok := ctx.Value(identityKey).(session.Identity); ok {
		return id
	}
	return session.Identity{Status: session.StatusGuest}
}

func sessionKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyCK).(string); ok {
		return key
	}
	return ""
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
