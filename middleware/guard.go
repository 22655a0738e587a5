package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vireosec/authgate"
)

type sessionContextKey struct{}

// SessionFromContext returns the validated session injected by [Guard].
func SessionFromContext(ctx context.Context) (*authgate.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(*authgate.SessionInfo)
	return info, ok
}

// Guard wraps a handler with bearer-token validation. Requests without a
// valid token get 401 and never reach the handler.
func Guard(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			info, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
