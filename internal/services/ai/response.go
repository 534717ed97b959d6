package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/validation"
)

// stripCodeFence removes a surrounding markdown code fence if present
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if end := strings.LastIndex(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractJSONObject returns the span from the first '{' to the last '}'
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// decodeLenient parses a JSON object out of free text. Models often wrap the
// object in fences or prose, so a strict parse is tried first and then the
// outermost brace span.
func decodeLenient(raw string, v any) error {
	clean := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(clean), v); err == nil {
		return nil
	}
	obj, ok := extractJSONObject(clean)
	if !ok {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// ParseClassification decodes and validates a classification answer
func ParseClassification(raw string) (models.Classification, error) {
	var c models.Classification
	if err := decodeLenient(raw, &c); err != nil {
		return models.Classification{}, err
	}
	c.Category = models.Category(strings.ToLower(strings.TrimSpace(string(c.Category))))
	if err := validation.Validate.Struct(c); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return c, nil
}

// ParseDecision decodes and validates an execution decision
func ParseDecision(raw string) (models.Decision, error) {
	var d models.Decision
	if err := decodeLenient(raw, &d); err != nil {
		return models.Decision{}, err
	}
	d.Action = models.ActionKind(strings.ToLower(strings.TrimSpace(string(d.Action))))
	if err := validation.Validate.Struct(d); err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return d, nil
}
