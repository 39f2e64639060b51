package auth

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// fixed is a test authenticator with a preset vote.
type fixed struct {
	result Result
}

func (f *fixed) Authenticate(context.Context, *http.Request) Result {
	return f.result
}

var _ Authenticator = (*fixed)(nil)

func yes(subject string) *fixed {
	return &fixed{result: Result{Decision: Yes, Identity: &Identity{Subject: subject}}}
}

func no() *fixed {
	return &fixed{result: Result{Decision: No, Err: ErrUnauthenticated}}
}

func abstain() *fixed {
	return &fixed{result: Result{Decision: Abstain}}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name        string
		chain       *Chain
		want        Decision
		wantSubject string
	}{
		{"first yes stops", &Chain{Authenticators: []Authenticator{yes("alice"), no()}, Default: No}, Yes, "alice"},
		{"first no stops", &Chain{Authenticators: []Authenticator{no(), yes("bob")}, Default: No}, No, ""},
		{"abstain continues", &Chain{Authenticators: []Authenticator{abstain(), yes("carol")}, Default: No}, Yes, "carol"},
		{"all abstain rejects", &Chain{Authenticators: []Authenticator{abstain(), abstain()}, Default: No}, No, ""},
		{"all abstain accepts", &Chain{Authenticators: []Authenticator{abstain()}, Default: Yes}, Yes, "anonymous"},
		{"empty chain rejects", &Chain{Default: No}, No, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			res := tt.chain.Authenticate(context.Background(), r)

			if res.Decision != tt.want {
				t.Fatalf("Decision = %s, want %s", res.Decision, tt.want)
			}
			if tt.want == Yes && res.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && res.Err == nil {
				t.Error("expected an error with a No decision")
			}
		})
	}
}

func TestTenantID(t *testing.T) {
	var nilID *Identity
	if nilID.TenantID() != "" {
		t.Error("nil identity should have no tenant")
	}
	id := &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}}
	if id.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want %q", id.TenantID(), "org-1")
	}
}

func TestWindowLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(time.Minute, 2, map[string]int{"unlimited": 0})
	l.now = func() time.Time { return now }

	alice := &Identity{Subject: "alice"}
	for i := range 2 {
		if err := l.Allow(context.Background(), alice); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow(context.Background(), alice); err != ErrTooManyRequests {
		t.Errorf("third request: err = %v, want ErrTooManyRequests", err)
	}

	// Other subjects have their own budget.
	if err := l.Allow(context.Background(), &Identity{Subject: "bob"}); err != nil {
		t.Errorf("bob: %v", err)
	}

	now = now.Add(time.Minute)
	if err := l.Allow(context.Background(), alice); err != nil {
		t.Errorf("after window reset: %v", err)
	}

	svc := &Identity{Subject: "svc", Tier: "unlimited"}
	for range 10 {
		if err := l.Allow(context.Background(), svc); err != nil {
			t.Fatalf("unlimited tier: %v", err)
		}
	}
}
