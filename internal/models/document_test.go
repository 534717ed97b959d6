package models

import (
	"strings"
	"testing"
)

func TestParseDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantHeader Header
		wantBody   string
	}{
		{
			name:  "header and body",
			input: "---\ntype: email\nid: abc123\n---\n\nHello there\n",
			wantHeader: Header{
				{Key: "type", Value: "email"},
				{Key: "id", Value: "abc123"},
			},
			wantBody: "Hello there\n",
		},
		{
			name:     "no header",
			input:    "just a body\nwith lines",
			wantBody: "just a body\nwith lines",
		},
		{
			name:     "unterminated header is body",
			input:    "---\ntype: email\nno closing marker",
			wantBody: "---\ntype: email\nno closing marker",
		},
		{
			name:  "value containing colons",
			input: "---\nsubject: Re: invoice: March\n---\n\nbody",
			wantHeader: Header{
				{Key: "subject", Value: "Re: invoice: March"},
			},
			wantBody: "body",
		},
		{
			name:  "lines without colon are skipped",
			input: "---\ntype: message\ngarbage line\n---\n\nbody",
			wantHeader: Header{
				{Key: "type", Value: "message"},
			},
			wantBody: "body",
		},
		{
			name:  "duplicate key keeps first position with last value",
			input: "---\ntype: email\nid: 1\ntype: message\n---\n\n",
			wantHeader: Header{
				{Key: "type", Value: "message"},
				{Key: "id", Value: "1"},
			},
			wantBody: "",
		},
		{
			name:  "crlf line endings",
			input: "---\r\ntype: mention\r\n---\r\n\r\nbody\r\n",
			wantHeader: Header{
				{Key: "type", Value: "mention"},
			},
			wantBody: "body\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := ParseDocument([]byte(tt.input))
			if len(doc.Header) != len(tt.wantHeader) {
				t.Fatalf("Expected %d header fields, got %d (%v)", len(tt.wantHeader), len(doc.Header), doc.Header)
			}
			for i, f := range tt.wantHeader {
				if doc.Header[i] != f {
					t.Errorf("Expected field %d to be %v, got %v", i, f, doc.Header[i])
				}
			}
			if doc.Body != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, doc.Body)
			}
		})
	}
}

func TestDocument_RenderRoundTrip(t *testing.T) {
	t.Parallel()

	doc := NewDocument(DocTypeDraft, "Thanks, will do.\n")
	doc.Header.Set(FieldOriginalFile, "EMAIL_123.md")
	doc.Header.Set(FieldDraftedAt, "2026-01-02T10:00:00Z")

	rendered := string(doc.Render())
	if !strings.HasPrefix(rendered, "---\ntype: draft\noriginal_file: EMAIL_123.md\n") {
		t.Errorf("Unexpected rendering: %q", rendered)
	}

	parsed := ParseDocument([]byte(rendered))
	if parsed.Type() != DocTypeDraft {
		t.Errorf("Expected type draft, got %q", parsed.Type())
	}
	if parsed.OriginalFile() != "EMAIL_123.md" {
		t.Errorf("Expected original_file EMAIL_123.md, got %q", parsed.OriginalFile())
	}
	if parsed.Body != doc.Body {
		t.Errorf("Expected body %q, got %q", doc.Body, parsed.Body)
	}
}

func TestDocument_RenderWithoutHeader(t *testing.T) {
	t.Parallel()

	doc := &Document{Body: "plain"}
	if got := string(doc.Render()); got != "plain" {
		t.Errorf("Expected plain body only, got %q", got)
	}
}

func TestHeader_SetReplacesInPlace(t *testing.T) {
	t.Parallel()

	var h Header
	h.Set("a", "1")
	h.Set("b", "2")
	h.Set("a", "3")

	if len(h) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(h))
	}
	if h[0].Key != "a" || h[0].Value != "3" {
		t.Errorf("Expected a=3 first, got %v", h[0])
	}
	if _, ok := h.Get("missing"); ok {
		t.Error("Expected missing key to be absent")
	}
}

func TestCategory_Destination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category Category
		want     Stage
	}{
		{CategoryNoise, StageDone},
		{CategoryAutomated, StageDone},
		{CategoryInformational, StageDone},
		{CategoryActionable, StagePendingApproval},
	}
	for _, tt := range tests {
		if got := tt.category.Destination(); got != tt.want {
			t.Errorf("Expected %s to route to %s, got %s", tt.category, tt.want, got)
		}
	}
	if Category("spam").IsValid() {
		t.Error("Expected unknown category to be invalid")
	}
}

func TestRef_Stem(t *testing.T) {
	t.Parallel()

	ref := NewRef(StagePendingApproval.Sub("email"), "DRAFT_x.md")
	if ref.Stem() != "DRAFT_x" {
		t.Errorf("Expected stem DRAFT_x, got %s", ref.Stem())
	}
	if ref.String() != "Pending_Approval/email/DRAFT_x.md" {
		t.Errorf("Unexpected ref string %s", ref.String())
	}
}
