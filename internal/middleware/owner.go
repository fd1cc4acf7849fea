package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkpad/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// OwnerKey is the context key for the owner external id taken from a bearer token.
const OwnerKey contextKey = "ownerExternalId"

// IdentifyOwner returns middleware that reads an optional Bearer JWT and
// injects its subject as the owner external id. Requests without an
// Authorization header pass through anonymously; malformed or invalid tokens
// are rejected. An empty secret disables token handling entirely.
func IdentifyOwner(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if jwtSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				response.Unauthorized(w, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), OwnerKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the owner external id set by IdentifyOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(OwnerKey).(string)
	return owner, ok && owner != ""
}

// SecretHeader carries the modification secret as an alternative to the query parameter.
const SecretHeader = "X-Modification-Secret"

// ModificationSecret returns the document modification secret sent with r,
// preferring the modificationSecret query parameter over SecretHeader.
func ModificationSecret(r *http.Request) string {
	if s := r.URL.Query().Get("modificationSecret"); s != "" {
		return s
	}
	return r.Header.Get(SecretHeader)
}
