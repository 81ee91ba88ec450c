package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nghiavohuynhdai/art-kids-api/api/web"
	"github.com/nghiavohuynhdai/art-kids-api/api/weberr"
	"github.com/nghiavohuynhdai/art-kids-api/core/claims"
)

const (
	UserIDHeader   = "X-User-Id"
	UserRoleHeader = "X-User-Role"
)

// Authenticate lifts the identity resolved by the upstream gateway into the
// request claims. Transitions are never anonymous, so requests without an
// identity are rejected here.
func Authenticate() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			userID := r.Header.Get(UserIDHeader)
			role := r.Header.Get(UserRoleHeader)
			if userID == "" || role == "" {
				return weberr.NotAuthorized(errors.New("request carries no user identity"))
			}

			switch role {
			case claims.RoleCustomer, claims.RoleProvider, claims.RoleAdmin:
			default:
				return weberr.NotAuthorized(errors.New("request carries an unknown role"))
			}

			ctx = claims.Set(ctx, claims.Claims{UserID: userID, Role: role})
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// Staff restricts a route to providers and admins.
func Staff() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			if !claims.IsStaff(ctx) {
				return weberr.NotAuthorized(errors.New("route is restricted to providers and admins"))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
