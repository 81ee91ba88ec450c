package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/nghiavohuynhdai/art-kids-api/api/web"
	"github.com/nghiavohuynhdai/art-kids-api/api/weberr"
	"github.com/nghiavohuynhdai/art-kids-api/rate"
)

// RateLimit rejects clients that exceed their request budget. The key is the
// gateway-resolved user when present, otherwise the remote host.
func RateLimit(l *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			key := r.Header.Get(UserIDHeader)
			if key == "" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				key = host
			}

			if !l.Allow(key) {
				return weberr.NewError(
					errors.New("client exceeded its request budget"),
					"too many requests",
					http.StatusTooManyRequests,
				)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
