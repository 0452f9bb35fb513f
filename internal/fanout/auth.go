package fanout

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/imerr"
)

type ctxKey int

const claimsCtxKey ctxKey = iota

// requireAuth enforces the "bearer" column of §6's REST surface table:
// every handler but the subscription lookup and the ambient endpoints
// requires a verified token (§7 Unauthorized -> 401).
func requireAuth(verifier *authtoken.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeError(w, imerr.Unauthorized("fanout: missing bearer token"))
				return
			}
			raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(header, prefix))
			if err != nil {
				writeError(w, imerr.Unauthorized("fanout: malformed bearer token"))
				return
			}
			claims, err := verifier.Verify(raw)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsCtxKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(r *http.Request) (authtoken.Claims, bool) {
	claims, ok := r.Context().Value(claimsCtxKey).(authtoken.Claims)
	return claims, ok
}
