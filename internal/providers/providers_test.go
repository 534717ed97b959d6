package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/vaultflow/internal/models"
)

func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	called := false
	r.Register(models.ActionSendEmail, ProviderFunc(func(ctx context.Context, d models.Decision) (models.Outcome, error) {
		called = true
		return models.Outcome{Summary: "sent", Target: d.To}, nil
	}))

	out, err := r.Execute(context.Background(), models.Decision{Action: models.ActionSendEmail, To: "a@example.com"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !called || out.Target != "a@example.com" {
		t.Errorf("Expected provider to run, got %+v", out)
	}

	_, err = r.Execute(context.Background(), models.Decision{Action: models.ActionCreateInvoice})
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("Expected ErrNoProvider, got %v", err)
	}
}

func TestRegistry_NoActionIsSkipped(t *testing.T) {
	t.Parallel()

	out, err := NewRegistry().Execute(context.Background(), models.Decision{Action: models.ActionNone, Reason: "automated notice"})
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("Expected ErrSkipped, got %v", err)
	}
	if out.Summary != "automated notice" {
		t.Errorf("Expected reason as summary, got %q", out.Summary)
	}
}

func TestWebhook_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantSummary string
	}{
		{name: "success with summary", status: http.StatusOK, body: `{"summary": "Invoice INV/001 created", "target": "Acme"}`, wantSummary: "Invoice INV/001 created"},
		{name: "success without body", status: http.StatusNoContent, wantSummary: "create_invoice delivered"},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var received models.Decision
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("X-Vaultflow-Action") != "create_invoice" {
					t.Errorf("Expected action header, got %q", r.Header.Get("X-Vaultflow-Action"))
				}
				_ = json.NewDecoder(r.Body).Decode(&received)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			wh := NewWebhook(srv.URL, srv.Client(), nil)
			out, err := wh.Execute(context.Background(), models.Decision{
				Action:      models.ActionCreateInvoice,
				PartnerName: "Acme",
				Lines:       []models.LineItem{{Description: "Consulting", Quantity: 1, PriceUnit: 100}},
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if out.Summary != tt.wantSummary {
				t.Errorf("Expected summary %q, got %q", tt.wantSummary, out.Summary)
			}
			if received.PartnerName != "Acme" || len(received.Lines) != 1 {
				t.Errorf("Expected decision payload, got %+v", received)
			}
		})
	}
}

func TestRegisterWebhooks(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	RegisterWebhooks(r, "", map[models.ActionKind]string{
		models.ActionSendEmail: "http://mail.local/hook",
	}, nil, nil)

	if _, ok := r.Lookup(models.ActionSendEmail); !ok {
		t.Error("Expected send_email to be bound")
	}
	if _, ok := r.Lookup(models.ActionCreateInvoice); ok {
		t.Error("Expected create_invoice to stay unbound without a URL")
	}

	all := NewRegistry()
	RegisterWebhooks(all, "http://hooks.local", nil, nil, nil)
	if got := len(all.Kinds()); got != len(models.ActionKinds) {
		t.Errorf("Expected every kind bound, got %d", got)
	}
}
