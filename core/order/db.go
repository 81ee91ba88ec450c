package order

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nghiavohuynhdai/art-kids-api/database"
)

// Store persists order aggregates. Every write is a single transaction and
// every statement is bounded by the configured timeout; transient driver
// failures are retried a bounded number of times before surfacing.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

const retryAttempts = 3

func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

type dbOrder struct {
	ID                string        `db:"order_id"`
	OrderNumber       string        `db:"order_number"`
	CustomerID        string        `db:"customer_id"`
	FirstName         string        `db:"first_name"`
	LastName          string        `db:"last_name"`
	Email             string        `db:"email"`
	Phone             string        `db:"phone"`
	ShippingAddress   string        `db:"shipping_address"`
	TotalAmount       int64         `db:"total_amount"`
	OrderStatus       string        `db:"order_status"`
	TransactionStatus string        `db:"transaction_status"`
	Payment           paymentColumn `db:"payment"`
	OrderDate         time.Time     `db:"order_date"`
	UpdatedAt         time.Time     `db:"updated_at"`
	Version           int           `db:"version"`
}

type dbItem struct {
	OrderID   string    `db:"order_id"`
	CourseID  string    `db:"course_id"`
	Price     int64     `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

type dbHistory struct {
	OrderID           string    `db:"order_id"`
	OrderStatus       string    `db:"order_status"`
	TransactionStatus string    `db:"transaction_status"`
	UserID            string    `db:"user_id"`
	UserRole          string    `db:"user_role"`
	CreatedAt         time.Time `db:"created_at"`
}

// paymentColumn maps the nullable JSONB payment column onto *Payment.
type paymentColumn struct {
	P *Payment
}

func (c paymentColumn) Value() (driver.Value, error) {
	if c.P == nil {
		return nil, nil
	}
	return c.P.Value()
}

func (c *paymentColumn) Scan(src interface{}) error {
	if src == nil {
		c.P = nil
		return nil
	}
	p := new(Payment)
	if err := p.Scan(src); err != nil {
		return err
	}
	c.P = p
	return nil
}

const qInsertOrder = `
	INSERT INTO orders
		(order_id, order_number, customer_id, first_name, last_name, email, phone, shipping_address,
		 total_amount, order_status, transaction_status, payment, order_date, updated_at, version)
	VALUES
		(:order_id, :order_number, :customer_id, :first_name, :last_name, :email, :phone, :shipping_address,
		 :total_amount, :order_status, :transaction_status, :payment, :order_date, :updated_at, :version)`

const qInsertItem = `
	INSERT INTO order_items (order_id, course_id, price, created_at)
	VALUES (:order_id, :course_id, :price, :created_at)`

const qInsertHistory = `
	INSERT INTO order_history (order_id, order_status, transaction_status, user_id, user_role, created_at)
	VALUES (:order_id, :order_status, :transaction_status, :user_id, :user_role, :created_at)`

// Save writes the full aggregate atomically. A partially written order is
// never observable.
func (s *Store) Save(ctx context.Context, o *Order) error {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := database.Retry(ctx, retryAttempts, func() error {
		return database.Transaction(s.db, func(tx sqlx.ExtContext) error {
			if _, err := sqlx.NamedExecContext(ctx, tx, qInsertOrder, toDBOrder(o)); err != nil {
				return fmt.Errorf("inserting order: %w", err)
			}
			for _, it := range o.Items {
				if _, err := sqlx.NamedExecContext(ctx, tx, qInsertItem, toDBItem(o.ID, it)); err != nil {
					return fmt.Errorf("inserting item[%s]: %w", it.CourseID, err)
				}
			}
			for _, h := range o.History {
				if _, err := sqlx.NamedExecContext(ctx, tx, qInsertHistory, toDBHistory(o.ID, h)); err != nil {
					return fmt.Errorf("inserting history entry: %w", err)
				}
			}
			return nil
		})
	})
	return database.Classify(err)
}

const qSelectOrder = `
	SELECT order_id, order_number, customer_id, first_name, last_name, email, phone, shipping_address,
	       total_amount, order_status, transaction_status, payment, order_date, updated_at, version
	FROM orders`

func (s *Store) Fetch(ctx context.Context, id string) (Order, error) {
	return s.fetchWhere(ctx, qSelectOrder+" WHERE order_id = $1", id)
}

// FetchByPaymentRef resolves the order bound to a payment gateway reference.
func (s *Store) FetchByPaymentRef(ctx context.Context, ref string) (Order, error) {
	return s.fetchWhere(ctx, qSelectOrder+" WHERE payment ->> 'ref' = $1", ref)
}

func (s *Store) fetchWhere(ctx context.Context, query string, arg string) (Order, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		row   dbOrder
		items []dbItem
		hist  []dbHistory
	)
	err := database.Retry(ctx, retryAttempts, func() error {
		if err := sqlx.GetContext(ctx, s.db, &row, query, arg); err != nil {
			return fmt.Errorf("selecting order: %w", err)
		}

		const qItems = `
			SELECT order_id, course_id, price, created_at
			FROM order_items WHERE order_id = $1 ORDER BY created_at, course_id`
		if err := sqlx.SelectContext(ctx, s.db, &items, qItems, row.ID); err != nil {
			return fmt.Errorf("selecting items: %w", err)
		}

		const qHistory = `
			SELECT order_id, order_status, transaction_status, user_id, user_role, created_at
			FROM order_history WHERE order_id = $1 ORDER BY entry_id`
		if err := sqlx.SelectContext(ctx, s.db, &hist, qHistory, row.ID); err != nil {
			return fmt.Errorf("selecting history: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, database.Classify(err)
	}

	return fromDB(row, items, hist), nil
}

// Page is the paginated list shape returned to callers.
type Page struct {
	Docs       []Order `json:"docs"`
	TotalDocs  int     `json:"totalDocs"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

// List returns order summaries (no items or history) newest first. An empty
// customerID lists every order.
func (s *Store) List(ctx context.Context, customerID string, page, limit int) (Page, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	qCount := `SELECT COUNT(*) FROM orders`
	qList := qSelectOrder
	args := []interface{}{}
	if customerID != "" {
		qCount += ` WHERE customer_id = $1`
		qList += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	qList += fmt.Sprintf(` ORDER BY order_date DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	var (
		total int
		rows  []dbOrder
	)
	err := database.Retry(ctx, retryAttempts, func() error {
		if err := sqlx.GetContext(ctx, s.db, &total, qCount, args...); err != nil {
			return fmt.Errorf("counting orders: %w", err)
		}
		listArgs := append(append([]interface{}{}, args...), limit, (page-1)*limit)
		if err := sqlx.SelectContext(ctx, s.db, &rows, qList, listArgs...); err != nil {
			return fmt.Errorf("selecting orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return Page{}, database.Classify(err)
	}

	docs := make([]Order, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, fromDB(row, nil, nil))
	}

	totalPages := (total + limit - 1) / limit
	return Page{Docs: docs, TotalDocs: total, Page: page, TotalPages: totalPages}, nil
}

const qUpdateStatuses = `
	UPDATE orders
	SET order_status = :order_status, transaction_status = :transaction_status,
	    payment = :payment, updated_at = :updated_at, version = version + 1
	WHERE order_id = :order_id AND version = :version`

// UpdateStatuses commits a transition: the status fields, the payment record
// and the new history entry land in one transaction, guarded by the version
// the order was read at. A lost race surfaces as ErrStaleOrder.
func (s *Store) UpdateStatuses(ctx context.Context, o *Order, entry History) error {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := database.Retry(ctx, retryAttempts, func() error {
		return database.Transaction(s.db, func(tx sqlx.ExtContext) error {
			res, err := sqlx.NamedExecContext(ctx, tx, qUpdateStatuses, toDBOrder(o))
			if err != nil {
				return fmt.Errorf("updating statuses: %w", err)
			}
			if err := requireMatch(ctx, tx, res, o.ID); err != nil {
				return err
			}

			if _, err := sqlx.NamedExecContext(ctx, tx, qInsertHistory, toDBHistory(o.ID, entry)); err != nil {
				return fmt.Errorf("appending history entry: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return database.Classify(err)
	}

	o.Version++
	return nil
}

const qUpdateItems = `
	UPDATE orders
	SET total_amount = :total_amount, updated_at = :updated_at, version = version + 1
	WHERE order_id = :order_id AND version = :version`

// UpdateItems rewrites the item set and the recomputed total atomically,
// guarded by the read version.
func (s *Store) UpdateItems(ctx context.Context, o *Order) error {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := database.Retry(ctx, retryAttempts, func() error {
		return database.Transaction(s.db, func(tx sqlx.ExtContext) error {
			res, err := sqlx.NamedExecContext(ctx, tx, qUpdateItems, toDBOrder(o))
			if err != nil {
				return fmt.Errorf("updating total: %w", err)
			}
			if err := requireMatch(ctx, tx, res, o.ID); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
				return fmt.Errorf("clearing items: %w", err)
			}
			for _, it := range o.Items {
				if _, err := sqlx.NamedExecContext(ctx, tx, qInsertItem, toDBItem(o.ID, it)); err != nil {
					return fmt.Errorf("inserting item[%s]: %w", it.CourseID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return database.Classify(err)
	}

	o.Version++
	return nil
}

// requireMatch distinguishes a lost optimistic race from a missing order when
// a guarded update touched no row.
func requireMatch(ctx context.Context, tx sqlx.ExtContext, res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`
	if err := sqlx.GetContext(ctx, tx, &exists, q, orderID); err != nil {
		return fmt.Errorf("checking order existence: %w", err)
	}
	if exists {
		return ErrStaleOrder
	}
	return ErrNotFound
}

func toDBOrder(o *Order) dbOrder {
	return dbOrder{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		CustomerID:        o.CustomerID,
		FirstName:         o.Customer.FirstName,
		LastName:          o.Customer.LastName,
		Email:             o.Customer.Email,
		Phone:             o.Customer.Phone,
		ShippingAddress:   o.Customer.ShippingAddress,
		TotalAmount:       o.TotalAmount,
		OrderStatus:       string(o.OrderStatus),
		TransactionStatus: string(o.TransactionStatus),
		Payment:           paymentColumn{P: o.Payment},
		OrderDate:         o.OrderDate,
		UpdatedAt:         o.UpdatedAt,
		Version:           o.Version,
	}
}

func toDBItem(orderID string, it Item) dbItem {
	return dbItem{OrderID: orderID, CourseID: it.CourseID, Price: it.Price, CreatedAt: it.CreatedAt}
}

func toDBHistory(orderID string, h History) dbHistory {
	return dbHistory{
		OrderID:           orderID,
		OrderStatus:       string(h.OrderStatus),
		TransactionStatus: string(h.TransactionStatus),
		UserID:            h.UserID,
		UserRole:          h.UserRole,
		CreatedAt:         h.Timestamp,
	}
}

func fromDB(row dbOrder, items []dbItem, hist []dbHistory) Order {
	o := Order{
		ID:          row.ID,
		OrderNumber: row.OrderNumber,
		CustomerID:  row.CustomerID,
		Customer: Customer{
			FirstName:       row.FirstName,
			LastName:        row.LastName,
			Email:           row.Email,
			Phone:           row.Phone,
			ShippingAddress: row.ShippingAddress,
		},
		TotalAmount:       row.TotalAmount,
		OrderDate:         row.OrderDate,
		UpdatedAt:         row.UpdatedAt,
		OrderStatus:       Status(row.OrderStatus),
		TransactionStatus: TransactionStatus(row.TransactionStatus),
		Payment:           row.Payment.P,
		Version:           row.Version,
	}
	for _, it := range items {
		o.Items = append(o.Items, Item{CourseID: it.CourseID, Price: it.Price, CreatedAt: it.CreatedAt})
	}
	for _, h := range hist {
		o.History = append(o.History, History{
			OrderStatus:       Status(h.OrderStatus),
			TransactionStatus: TransactionStatus(h.TransactionStatus),
			Timestamp:         h.CreatedAt,
			UserID:            h.UserID,
			UserRole:          h.UserRole,
		})
	}
	return o
}
