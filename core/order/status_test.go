package order

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{Pending, Confirmed, true},
		{Pending, Cancelled, true},
		{Pending, Shipped, false},
		{Pending, Delivered, false},
		{Confirmed, Shipped, true},
		{Confirmed, Cancelled, true},
		{Confirmed, Delivered, false},
		{Confirmed, Pending, false},
		{Shipped, Delivered, true},
		{Shipped, Cancelled, false},
		{Shipped, Pending, false},
		{Delivered, Pending, false},
		{Delivered, Cancelled, false},
		{Cancelled, Pending, false},
		{Cancelled, Confirmed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected allowed=%t, got %t", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestTransactionTransitions(t *testing.T) {
	tests := []struct {
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{Draft, Authorized, true},
		{Draft, Failed, true},
		{Draft, Captured, false},
		{Draft, Refunded, false},
		{Authorized, Captured, true},
		{Authorized, Failed, true},
		{Authorized, Refunded, true},
		{Authorized, Draft, false},
		{Captured, Refunded, true},
		{Captured, Authorized, false},
		{Captured, Draft, false},
		{Failed, Authorized, false},
		{Failed, Draft, false},
		{Refunded, Captured, false},
		{Refunded, Draft, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected allowed=%t, got %t", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{Pending, Confirmed, Shipped, Delivered, Cancelled} {
		if !s.Valid() {
			t.Errorf("%s should be a valid order status", s)
		}
	}
	if Status("UNKNOWN").Valid() {
		t.Error("UNKNOWN should not be a valid order status")
	}

	for _, s := range []TransactionStatus{Draft, Authorized, Captured, Failed, Refunded} {
		if !s.Valid() {
			t.Errorf("%s should be a valid transaction status", s)
		}
	}
	if TransactionStatus("UNKNOWN").Valid() {
		t.Error("UNKNOWN should not be a valid transaction status")
	}
}
