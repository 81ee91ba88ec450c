package middleware

import (
	"context"
	"net/http"

	"github.com/nghiavohuynhdai/art-kids-api/api/web"
	"github.com/nghiavohuynhdai/art-kids-api/api/weberr"
	"github.com/sirupsen/logrus"
)

// Errors renders handler errors. Errors carrying a response are returned as
// built; validation field detail is merged into the body; everything else is
// an opaque 500 so internals never leak.
func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			logFields := map[string]interface{}{
				"req_id":  ContextRequestID(ctx),
				"message": err,
			}

			fields, hasFields := weberr.Fields(err)
			if hasFields {
				for k, v := range fields {
					logFields[k] = v
				}
			}

			log.WithFields(logrus.Fields(logFields)).Error("ERROR")

			if body, code, ok := weberr.Response(err); ok {
				if er, ok := body.(*weberr.ErrorResponse); ok && hasFields {
					er.Fields = fields
				}
				return web.Respond(ctx, w, body, code)
			}

			er := weberr.ErrorResponse{
				Error: http.StatusText(http.StatusInternalServerError),
			}
			return web.Respond(ctx, w, er, http.StatusInternalServerError)
		}
		return h
	}
	return m
}
