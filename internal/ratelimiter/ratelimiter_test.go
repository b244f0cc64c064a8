package ratelimiter

import (
	"context"
	"net"
	"testing"
	"time"
)

// TestNew verifies limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond uint
		burst     uint
		unlimited bool
	}{
		{name: "standard rate", perSecond: 100, burst: 200},
		{name: "zero burst raised", perSecond: 10, burst: 0},
		{name: "unlimited (zero rate)", perSecond: 0, burst: 0, unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if limiter == nil || limiter.limiter == nil {
				t.Fatal("New() returned an unusable limiter")
			}
			if limiter.Unlimited() != tt.unlimited {
				t.Fatalf("Unlimited() = %v, want %v", limiter.Unlimited(), tt.unlimited)
			}
			if !limiter.Allow() {
				t.Fatal("first event should always be admitted")
			}
		})
	}
}

// TestAllow verifies that Allow() enforces the burst and refills.
func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow() {
		t.Fatal("event should be limited after burst exhausted")
	}

	// 100ms at 10/s = 1 token
	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("event should be allowed after token replenishment")
	}
}

// TestWait verifies that Wait() blocks until a token is available.
func TestWait(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first wait should succeed: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("second wait should succeed: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Fatalf("wait time %v outside expected range 50ms-250ms", elapsed)
	}
}

// TestWaitContextCancellation verifies that Wait() respects its context.
func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	if !limiter.Allow() {
		t.Fatal("first event should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait() should fail when the token arrives after the deadline")
	}
}

// TestTokens verifies that Tokens() tracks consumption.
func TestTokens(t *testing.T) {
	limiter := New(10, 10)

	initial := limiter.Tokens()
	if initial < 9 || initial > 10 {
		t.Fatalf("initial tokens %f outside expected range 9-10", initial)
	}

	for i := 0; i < 5; i++ {
		limiter.Allow()
	}

	remaining := limiter.Tokens()
	if remaining < 4 || remaining > 6 {
		t.Fatalf("remaining tokens %f outside expected range 4-6", remaining)
	}
}

// TestUnlimitedRate verifies that a zero rate never limits.
func TestUnlimitedRate(t *testing.T) {
	limiter := New(0, 0)

	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter should allow event %d", i)
		}
	}
}

func tcpAddr(ip string, port int) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

// TestAdmissionPerClient verifies that one client cannot use another's budget.
func TestAdmissionPerClient(t *testing.T) {
	a := NewAdmission(AdmissionConfig{PerClientPerSecond: 1, PerClientBurst: 2})
	if !a.Enabled() {
		t.Fatal("admission should be enabled")
	}

	noisy := "10.0.0.1"
	for i := 0; i < 2; i++ {
		if ok, _ := a.Admit(tcpAddr(noisy, 40000+i)); !ok {
			t.Fatalf("connection %d within burst refused", i)
		}
	}

	ok, reason := a.Admit(tcpAddr(noisy, 40010))
	if ok || reason != ReasonPerClient {
		t.Fatalf("Admit = (%v, %q), want (false, %q)", ok, reason, ReasonPerClient)
	}

	if ok, _ := a.Admit(tcpAddr("10.0.0.2", 40000)); !ok {
		t.Fatal("other client should not be affected")
	}

	if got := a.TrackedClients(); got != 2 {
		t.Fatalf("TrackedClients = %d, want 2", got)
	}
}

// TestAdmissionGlobal verifies the shared bucket.
func TestAdmissionGlobal(t *testing.T) {
	a := NewAdmission(AdmissionConfig{ConnectionsPerSecond: 1, Burst: 1})

	if ok, _ := a.Admit(tcpAddr("10.0.0.1", 1)); !ok {
		t.Fatal("first connection refused")
	}
	ok, reason := a.Admit(tcpAddr("10.0.0.2", 1))
	if ok || reason != ReasonGlobal {
		t.Fatalf("Admit = (%v, %q), want (false, %q)", ok, reason, ReasonGlobal)
	}
}

// TestAdmissionDisabled verifies the zero config admits everything.
func TestAdmissionDisabled(t *testing.T) {
	a := NewAdmission(AdmissionConfig{})
	if a.Enabled() {
		t.Fatal("zero config should be disabled")
	}
	for i := 0; i < 100; i++ {
		if ok, _ := a.Admit(tcpAddr("10.0.0.1", i)); !ok {
			t.Fatalf("connection %d refused", i)
		}
	}
}

// TestAdmissionEviction verifies idle client buckets are dropped.
func TestAdmissionEviction(t *testing.T) {
	a := NewAdmission(AdmissionConfig{PerClientPerSecond: 10, PerClientBurst: 10, IdleEviction: time.Minute})

	now := time.Now()
	a.now = func() time.Time { return now }

	a.Admit(tcpAddr("10.0.0.1", 1))
	a.Admit(tcpAddr("10.0.0.2", 1))
	if got := a.TrackedClients(); got != 2 {
		t.Fatalf("TrackedClients = %d, want 2", got)
	}

	now = now.Add(2 * time.Minute)
	a.Admit(tcpAddr("10.0.0.3", 1))
	if got := a.TrackedClients(); got != 1 {
		t.Fatalf("TrackedClients after eviction = %d, want 1", got)
	}
}

// BenchmarkAllow measures the Allow() fast path.
func BenchmarkAllow(b *testing.B) {
	limiter := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}
