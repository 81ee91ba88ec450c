package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/nghiavohuynhdai/art-kids-api/api/middleware"
	"github.com/nghiavohuynhdai/art-kids-api/api/web"
	"github.com/nghiavohuynhdai/art-kids-api/config"
	"github.com/nghiavohuynhdai/art-kids-api/core/course"
	"github.com/nghiavohuynhdai/art-kids-api/core/order"
	"github.com/nghiavohuynhdai/art-kids-api/rate"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type APIConfig struct {
	CorsOrigin   string
	Log          logrus.FieldLogger
	DB           *sqlx.DB
	QueryTimeout time.Duration
	Limiter      *rate.Limiter
	Paypal       *paypal.Client
	Stripe       *stripecl.API
	StripeCfg    config.Stripe
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())
	if cfg.Limiter != nil {
		a.mw = append(a.mw, middleware.RateLimit(cfg.Limiter))
	}

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := middleware.Authenticate()
	staff := middleware.Staff()

	orders := order.NewStore(cfg.DB, cfg.QueryTimeout)

	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB))

	a.Handle(http.MethodPost, "/orders", order.HandleCreate(cfg.DB, orders), authen)
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(orders), authen)
	a.Handle(http.MethodGet, "/orders", order.HandleList(orders), authen)
	a.Handle(http.MethodPatch, "/orders/{id}/status", order.HandleTransition(orders), authen, staff)
	a.Handle(http.MethodPost, "/orders/{id}/cancel", order.HandleCancel(orders), authen)
	a.Handle(http.MethodPut, "/orders/{id}/items", order.HandleAddItem(cfg.DB, orders), authen)
	a.Handle(http.MethodDelete, "/orders/{id}/items/{course_id}", order.HandleRemoveItem(orders), authen)

	a.Handle(http.MethodPost, "/orders/{id}/paypal", order.HandlePaypalCheckout(cfg.DB, orders, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/orders/paypal/{id}/capture", order.HandlePaypalCapture(orders, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/orders/{id}/stripe", order.HandleStripeCheckout(cfg.DB, orders, cfg.Stripe, cfg.StripeCfg), authen)
	a.Handle(http.MethodPost, "/orders/stripe/capture", order.HandleStripeCapture(orders, cfg.StripeCfg))

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
