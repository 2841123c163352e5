package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/dashauth"
)

// Engine is the part of *dashauth.Engine the guard needs.
type Engine interface {
	Handle(ctx context.Context, req dashauth.Request) (*dashauth.Response, error)
}

// Identity is the verified caller placed in the request context.
type Identity struct {
	Session dashauth.Session
	User    dashauth.UserRecord
}

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// Guard admits a request only when its session cookie restores an
// authenticated session. Credentials in the body are never consulted.
func Guard(engine Engine, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w, http.StatusUnauthorized)
				return
			}

			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				unauthorized(w, http.StatusUnauthorized)
				return
			}

			resp, err := engine.Handle(r.Context(), dashauth.Request{Login: dashauth.LoginInput{Cookie: c.Value}})
			if err != nil {
				unauthorized(w, http.StatusServiceUnavailable)
				return
			}
			if !resp.Session.Authenticated() || resp.User == nil {
				if resp.Cookie.Action == dashauth.CookieClear {
					http.SetCookie(w, &http.Cookie{Name: cookieName, Path: "/", MaxAge: -1, HttpOnly: true})
				}
				unauthorized(w, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, Identity{
				Session: resp.Session,
				User:    *resp.User,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}
