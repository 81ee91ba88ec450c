package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	interval := 10 * time.Millisecond
	l := NewLimiter(1, time.Hour, Every(interval))

	tooshort := 1 * time.Millisecond

	key := "customer-1"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := l.Allow(key); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterIsolatesClients(t *testing.T) {
	interval := 100 * time.Millisecond
	l := NewLimiter(1, time.Hour, Every(interval))

	if !l.Allow("customer-1") {
		t.Fatal("first request of customer-1 should pass")
	}
	if l.Allow("customer-1") {
		t.Fatal("second immediate request of customer-1 should be limited")
	}
	if !l.Allow("customer-2") {
		t.Fatal("customer-2 must not share customer-1's budget")
	}
}

func TestLimiterWithBurst(t *testing.T) {
	interval := 100 * time.Millisecond
	l := NewLimiter(10, time.Hour, Every(interval))

	key := "customer-1"
	for i := 0; i < 10; i++ {
		if !l.Allow(key) {
			t.Fatalf("burst request %d should pass", i)
		}
	}
	if l.Allow(key) {
		t.Fatal("request beyond the burst should be limited")
	}

	time.Sleep(interval)
	if !l.Allow(key) {
		t.Fatal("request after refill interval should pass")
	}
}
