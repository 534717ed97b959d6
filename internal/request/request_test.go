package request

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.1:12345", "10.0.0.1:12345"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			got := ClientIP(r)
			if got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestEnsureID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"caller id kept", "abc-123", true},
		{"missing", "", false},
		{"too long", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set(HeaderRequestID, tt.header)
			}
			got := EnsureID(r)
			if tt.wantSame {
				if got != tt.header {
					t.Errorf("EnsureID() = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("EnsureID() = %q, want a generated UUID", got)
			}
		})
	}
}

func TestIDFromContext(t *testing.T) {
	t.Parallel()
	ctx := WithID(context.Background(), "req-1")
	if got := IDFromContext(ctx); got != "req-1" {
		t.Errorf("IDFromContext() = %q, want req-1", got)
	}
	if got := IDFromContext(context.Background()); got != "" {
		t.Errorf("IDFromContext() = %q, want empty", got)
	}
}
