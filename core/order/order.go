package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nghiavohuynhdai/art-kids-api/random"
	"github.com/nghiavohuynhdai/art-kids-api/validate"
)

// Customer is the contact and shipping snapshot captured when the order is
// placed. It is frozen on the order and never follows later profile changes.
type Customer struct {
	FirstName       string `json:"firstName" validate:"required,max=30"`
	LastName        string `json:"lastName" validate:"required,max=30"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,vnphone"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
}

// Item is one line of an order: a course and its price at purchase time.
// Prices are integer minor units and are never re-derived from the catalog.
type Item struct {
	CourseID  string    `json:"courseId"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

// History is one immutable audit record of a status transition.
type History struct {
	OrderStatus       Status            `json:"orderStatus"`
	TransactionStatus TransactionStatus `json:"transactionStatus"`
	Timestamp         time.Time         `json:"timestamp"`
	UserID            string            `json:"userId"`
	UserRole          string            `json:"userRole"`
}

// Payment is the embedded record of the external payment collaborator. The
// order stores and forwards it; only its presence matters here.
type Payment struct {
	Provider string `json:"provider"`
	Ref      string `json:"ref"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (p Payment) Value() (driver.Value, error) { return json.Marshal(p) }

func (p *Payment) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		return nil
	}
	return fmt.Errorf("cannot scan payment from %T", src)
}

// Actor identifies who triggered a transition. Transitions are never anonymous.
type Actor struct {
	UserID string
	Role   string
}

// WebhookActor stamps transitions driven by payment gateway callbacks, which
// carry no user claims.
var WebhookActor = Actor{UserID: "payment-webhook", Role: "SYSTEM"}

// Order is the aggregate root for a single purchase. All mutation goes
// through its methods; the version field guards concurrent writers.
type Order struct {
	ID                string            `json:"id"`
	OrderNumber       string            `json:"orderNumber"`
	CustomerID        string            `json:"customer"`
	Customer          Customer          `json:"customerInfo"`
	Items             []Item            `json:"items"`
	TotalAmount       int64             `json:"totalAmount"`
	OrderDate         time.Time         `json:"orderDate"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	OrderStatus       Status            `json:"orderStatus"`
	TransactionStatus TransactionStatus `json:"transactionStatus"`
	Payment           *Payment          `json:"payment,omitempty"`
	History           []History         `json:"history"`
	Version           int               `json:"-"`
}

// New builds a PENDING/DRAFT order from a customer snapshot and its items,
// computing the total and seeding the history with the creation entry.
func New(customerID string, snapshot Customer, items []Item, actor Actor, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if fields := validate.Fields(snapshot); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}
	for _, it := range items {
		if it.Price < 0 {
			return nil, &ValidationError{Fields: map[string]interface{}{
				"items": fmt.Sprintf("course[%s] has a negative price", it.CourseID),
			}}
		}
	}

	o := &Order{
		ID:                validate.GenerateID(),
		OrderNumber:       random.OrderNumber(),
		CustomerID:        customerID,
		Customer:          snapshot,
		Items:             items,
		OrderDate:         now,
		UpdatedAt:         now,
		OrderStatus:       Pending,
		TransactionStatus: Draft,
		Version:           1,
	}
	o.recalc()
	o.History = []History{o.historyEntry(actor, now)}

	return o, nil
}

// Transition moves the order along one or both status tracks, enforcing the
// transition tables and the payment cross-constraint, and appends exactly one
// history entry. On success the returned entry is the appended one.
func (o *Order) Transition(newStatus *Status, newTransaction *TransactionStatus, actor Actor, now time.Time) (History, error) {
	targetStatus := o.OrderStatus
	if newStatus != nil {
		targetStatus = *newStatus
	}
	targetTransaction := o.TransactionStatus
	if newTransaction != nil {
		targetTransaction = *newTransaction
	}

	if targetStatus == o.OrderStatus && targetTransaction == o.TransactionStatus {
		return History{}, ErrNoChange
	}

	if targetTransaction != o.TransactionStatus && !o.TransactionStatus.CanTransition(targetTransaction) {
		return History{}, &IllegalTransitionError{
			Track: "transactionStatus",
			From:  string(o.TransactionStatus),
			To:    string(targetTransaction),
		}
	}

	if targetStatus != o.OrderStatus {
		if !o.OrderStatus.CanTransition(targetStatus) {
			return History{}, &IllegalTransitionError{
				Track: "orderStatus",
				From:  string(o.OrderStatus),
				To:    string(targetStatus),
			}
		}

		// Fulfillment may not outrun payment.
		if (targetStatus == Shipped || targetStatus == Delivered) && targetTransaction != Captured {
			return History{}, &IllegalTransitionError{
				Track: "orderStatus",
				From:  string(o.OrderStatus),
				To:    string(targetStatus),
			}
		}
	}

	o.OrderStatus = targetStatus
	o.TransactionStatus = targetTransaction
	o.UpdatedAt = now

	entry := o.historyEntry(actor, now)
	o.History = append(o.History, entry)
	return entry, nil
}

// AttachPayment records the gateway reference and authorizes the transaction
// in the same step, so the payment record is never present on a DRAFT order.
func (o *Order) AttachPayment(p Payment, actor Actor, now time.Time) (History, error) {
	authorized := Authorized
	entry, err := o.Transition(nil, &authorized, actor, now)
	if err != nil {
		return History{}, err
	}
	o.Payment = &p
	return entry, nil
}

// AddItem appends a line to the order while the payment is still DRAFT and
// recomputes the total.
func (o *Order) AddItem(it Item, now time.Time) error {
	if o.TransactionStatus != Draft {
		return ErrImmutableOrder
	}
	if it.Price < 0 {
		return &ValidationError{Fields: map[string]interface{}{
			"items": fmt.Sprintf("course[%s] has a negative price", it.CourseID),
		}}
	}
	for _, have := range o.Items {
		if have.CourseID == it.CourseID {
			return ErrDuplicateItem
		}
	}

	o.Items = append(o.Items, it)
	o.recalc()
	o.UpdatedAt = now
	return nil
}

// RemoveItem drops a line while the payment is still DRAFT. Orders never
// shrink to zero items.
func (o *Order) RemoveItem(courseID string, now time.Time) error {
	if o.TransactionStatus != Draft {
		return ErrImmutableOrder
	}
	if len(o.Items) == 1 && o.Items[0].CourseID == courseID {
		return ErrEmptyOrder
	}

	for i, have := range o.Items {
		if have.CourseID == courseID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.recalc()
			o.UpdatedAt = now
			return nil
		}
	}
	return ErrItemNotFound
}

func (o *Order) recalc() {
	var tot int64
	for _, it := range o.Items {
		tot += it.Price
	}
	o.TotalAmount = tot
}

func (o *Order) historyEntry(actor Actor, now time.Time) History {
	return History{
		OrderStatus:       o.OrderStatus,
		TransactionStatus: o.TransactionStatus,
		Timestamp:         now,
		UserID:            actor.UserID,
		UserRole:          actor.Role,
	}
}
