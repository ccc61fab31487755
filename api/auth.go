/*
auth.go - Bearer-token identity middleware

PURPOSE:
  Validates the HS256 access token issued by the auth service and injects
  the subject (member ID) and role claims into the request context. Token
  ISSUANCE lives in the auth service, not here; this engine only verifies.

ROLES:
  member - the default; can see and mutate only their own bookings
  boss   - staff surface; client listing, block/unblock, finances,
           privileged cancellation
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "role"
)

const RoleBoss = "boss"

// Authenticate returns middleware that rejects requests without a valid
// Bearer token and stores the token's sub/role claims in the context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid claims", nil)
				return
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				writeError(w, http.StatusUnauthorized, "token has no subject", nil)
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), ctxUserID, sub)
			ctx = context.WithValue(ctx, ctxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBoss gates the staff surface.
func RequireBoss(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if roleFrom(r) != RoleBoss {
			writeError(w, http.StatusForbidden, "boss role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func roleFrom(r *http.Request) string {
	role, _ := r.Context().Value(ctxRole).(string)
	return role
}

func isBoss(r *http.Request) bool {
	return roleFrom(r) == RoleBoss
}
