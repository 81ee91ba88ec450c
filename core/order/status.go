package order

// Status is the fulfillment-side track of an order.
type Status string

const (
	Pending   Status = "PENDING"
	Confirmed Status = "CONFIRMED"
	Shipped   Status = "SHIPPED"
	Delivered Status = "DELIVERED"
	Cancelled Status = "CANCELLED"
)

// TransactionStatus is the payment-side track of an order.
type TransactionStatus string

const (
	Draft      TransactionStatus = "DRAFT"
	Authorized TransactionStatus = "AUTHORIZED"
	Captured   TransactionStatus = "CAPTURED"
	Failed     TransactionStatus = "FAILED"
	Refunded   TransactionStatus = "REFUNDED"
)

// The legal transitions of each track. Absence from the map means the status
// is terminal. Enforcement happens in Order.Transition, never by convention.
var statusTransitions = map[Status][]Status{
	Pending:   {Confirmed, Cancelled},
	Confirmed: {Shipped, Cancelled},
	Shipped:   {Delivered},
}

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	Draft:      {Authorized, Failed},
	Authorized: {Captured, Failed, Refunded},
	Captured:   {Refunded},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case Pending, Confirmed, Shipped, Delivered, Cancelled:
		return true
	}
	return false
}

func (t TransactionStatus) CanTransition(to TransactionStatus) bool {
	for _, next := range transactionTransitions[t] {
		if next == to {
			return true
		}
	}
	return false
}

func (t TransactionStatus) Valid() bool {
	switch t {
	case Draft, Authorized, Captured, Failed, Refunded:
		return true
	}
	return false
}
