package models

import (
	"bufio"
	"strings"
)

// HeaderMarker fences the metadata block of a Task Document
const HeaderMarker = "---"

// DocType discriminates Task Documents by their source
type DocType string

const (
	DocTypeEmail         DocType = "email"
	DocTypeMessage       DocType = "message"
	DocTypeMention       DocType = "mention"
	DocTypeFileDrop      DocType = "file_drop"
	DocTypeBusinessEvent DocType = "business_event"
	DocTypeDraft         DocType = "draft"
	DocTypePlan          DocType = "plan"
	DocTypePost          DocType = "linkedin_post"
	DocTypeUnknown       DocType = ""
)

// Well-known header keys
const (
	FieldType           = "type"
	FieldID             = "id"
	FieldOriginalFile   = "original_file"
	FieldCreated        = "created"
	FieldClassification = "classification"
	FieldDraftedAt      = "drafted_at"
)

// Field is a single `key: value` header line
type Field struct {
	Key   string
	Value string
}

// Header is an ordered set of fields with unique keys
type Header []Field

// Get returns the value for key and whether it was present
func (h Header) Get(key string) (string, bool) {
	for _, f := range h {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the value for key or an empty string
func (h Header) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Set replaces the value of an existing key in place, or appends a new field
func (h *Header) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Field{Key: key, Value: value})
}

// Clone returns a copy that can be modified independently
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// Document is a Task Document: an ordered metadata header and a free-form body.
// Its processing state is the stage that contains it, not anything stored here.
type Document struct {
	Header Header
	Body   string
}

// NewDocument creates a document with the given type and body
func NewDocument(docType DocType, body string) *Document {
	d := &Document{Body: body}
	if docType != DocTypeUnknown {
		d.Header.Set(FieldType, string(docType))
	}
	return d
}

// Type returns the document type discriminator
func (d *Document) Type() DocType {
	return DocType(strings.TrimSpace(d.Header.Value(FieldType)))
}

// OriginalFile returns the dedup key of a draft
func (d *Document) OriginalFile() string {
	return strings.TrimSpace(d.Header.Value(FieldOriginalFile))
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	return &Document{Header: d.Header.Clone(), Body: d.Body}
}

// ParseDocument decodes the document text format. Text without a leading
// marker line is treated as body with an empty header, and header lines
// without a colon are skipped.
func ParseDocument(data []byte) *Document {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, HeaderMarker+"\n") {
		return &Document{Body: text}
	}
	rest := text[len(HeaderMarker)+1:]

	var header Header
	scanner := bufio.NewScanner(strings.NewReader(rest))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	consumed := 0
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		consumed += len(line) + 1
		if strings.TrimSpace(line) == HeaderMarker {
			closed = true
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		header.Set(key, strings.TrimSpace(value))
	}
	if !closed {
		// an unterminated header is not a header
		return &Document{Body: text}
	}

	body := ""
	if consumed < len(rest) {
		body = rest[consumed:]
	}
	body = strings.TrimPrefix(body, "\n")
	return &Document{Header: header, Body: body}
}

// Render encodes the document in the text format
func (d *Document) Render() []byte {
	var b strings.Builder
	if len(d.Header) > 0 {
		b.WriteString(HeaderMarker)
		b.WriteByte('\n')
		for _, f := range d.Header {
			b.WriteString(f.Key)
			b.WriteString(": ")
			b.WriteString(f.Value)
			b.WriteByte('\n')
		}
		b.WriteString(HeaderMarker)
		b.WriteString("\n\n")
	}
	b.WriteString(d.Body)
	return []byte(b.String())
}
