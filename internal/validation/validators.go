package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("category", validateCategory); err != nil {
		panic(fmt.Sprintf("failed to register category validator: %v", err))
	}
	if err := Validate.RegisterValidation("action_kind", validateActionKind); err != nil {
		panic(fmt.Sprintf("failed to register action_kind validator: %v", err))
	}
}

// validateCategory validates that a string is a valid Category enum value
func validateCategory(fl validator.FieldLevel) bool {
	return models.Category(fl.Field().String()).IsValid()
}

// validateActionKind validates that a string is a valid ActionKind enum value
func validateActionKind(fl validator.FieldLevel) bool {
	return models.ActionKind(fl.Field().String()).IsValid()
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
