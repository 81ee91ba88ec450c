package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("customer not found")

type Customer struct {
	ID        string    `json:"id" db:"customer_id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Fetch is the existence lookup used at order-creation time. Orders keep
// their own snapshot of contact details; this only proves the reference.
func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Customer, error) {
	const q = `
		SELECT customer_id, first_name, last_name, email, phone, created_at, updated_at
		FROM customers WHERE customer_id = $1`

	var c Customer
	if err := sqlx.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("selecting customer[%s]: %w", id, err)
	}
	return c, nil
}

func Create(ctx context.Context, db sqlx.ExtContext, c Customer) error {
	const q = `
		INSERT INTO customers (customer_id, first_name, last_name, email, phone, created_at, updated_at)
		VALUES (:customer_id, :first_name, :last_name, :email, :phone, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}
	return nil
}
