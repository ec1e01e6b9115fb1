package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	sessioncore "github.com/tverran/sessioncore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the verified claims injected by
// [RequireAuth], if the request passed through it.
func AuthResultFromContext(ctx context.Context) (*sessioncore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*sessioncore.AuthResult)
	return res, ok
}

// RequireAuth enforces a bearer token carrying every listed permission.
// The verified [sessioncore.AuthResult] is placed in the request context
// for downstream handlers.
func RequireAuth(engine *sessioncore.Engine, permissions ...string) func(http.Handler) http.Handler {
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

			ctx := requestContext(r)
			res, err := engine.Authorize(ctx, token, permissions...)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, sessioncore.ErrPermissionDenied) {
					status = http.StatusForbidden
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is [RequireAuth] plus an exact role check. Admin passes any
// role requirement.
func RequireRole(engine *sessioncore.Engine, role sessioncore.Role) func(http.Handler) http.Handler {
	guard := RequireAuth(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || (res.Role != role && res.Role != sessioncore.RoleAdmin) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// requestContext stamps the caller's network identity so Engine audit
// events carry it.
func requestContext(r *http.Request) context.Context {
	ctx := sessioncore.WithClientIP(r.Context(), clientIP(r))
	if ua := r.UserAgent(); ua != "" {
		ctx = sessioncore.WithUserAgent(ctx, ua)
	}
	return ctx
}

// clientIP resolves the requester identity: leftmost X-Forwarded-For hop,
// then X-Real-IP, then the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
