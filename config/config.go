package config

import "time"

type Config struct {
	Web    Web
	Cors   Cors
	DB     DB
	Paypal Paypal
	Stripe Stripe
	Rate   Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:5000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:artkids"`
	DisableTLS   bool   `conf:"default:true"`
	MaxIdleConns int    `conf:"default:2"`
	MaxOpenConns int    `conf:"default:25"`

	// QueryTimeout bounds every statement issued by the repositories.
	QueryTimeout time.Duration `conf:"default:5s"`
}

type Paypal struct {
	ClientID string `conf:"default:test"`
	Secret   string `conf:"default:test,mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

type Stripe struct {
	APISecret     string `conf:"default:test,mask"`
	WebhookSecret string `conf:"default:test,mask"`
	SuccessURL    string `conf:"default:http://localhost:3000/success"`
	CancelURL     string `conf:"default:http://localhost:3000/cancel"`
}

type Rate struct {
	Burst  int           `conf:"default:20"`
	Expiry time.Duration `conf:"default:1h"`
	Every  time.Duration `conf:"default:100ms"`
}
