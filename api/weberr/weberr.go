// Package weberr decorates errors with what the HTTP layer needs to render
// them: a response body with its status code, and optional per-field detail.
// Handlers build errors here; the error middleware unwraps them.
package weberr

// Opt adds one behavior to an error.
type Opt func(error) error

// Wrap applies opts to err in order, so the last option is the outermost
// wrapper.
func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse attaches the body and status the error should render as.
func WithResponse(body interface{}, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// WithFields attaches per-field detail, keyed by field name.
func WithFields(fields map[string]interface{}) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}
