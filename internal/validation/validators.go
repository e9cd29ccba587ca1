package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

const (
	// MaxNameLength is the maximum length for habit names and challenge titles
	MaxNameLength = 200
	// MaxNoteLength is the maximum length for entry notes and descriptions
	MaxNoteLength = 2000
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("iso_date", validateISODate); err != nil {
		panic(fmt.Sprintf("failed to register iso_date validator: %v", err))
	}
	if err := Validate.RegisterValidation("leaderboard_window", validateLeaderboardWindow); err != nil {
		panic(fmt.Sprintf("failed to register leaderboard_window validator: %v", err))
	}
	if err := Validate.RegisterValidation("challenge_response", validateChallengeResponse); err != nil {
		panic(fmt.Sprintf("failed to register challenge_response validator: %v", err))
	}
}

// validateISODate accepts strict YYYY-MM-DD calendar dates
func validateISODate(fl validator.FieldLevel) bool {
	_, err := analytics.ParseDate(fl.Field().String())
	return err == nil
}

// validateLeaderboardWindow accepts week, month and all
func validateLeaderboardWindow(fl validator.FieldLevel) bool {
	return ValidateLeaderboardWindow(fl.Field().String()) == nil
}

// validateChallengeResponse accepts accept and decline
func validateChallengeResponse(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "accept", "decline":
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
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

// SanitizeOptional sanitizes an optional text field; blank becomes nil
func SanitizeOptional(text *string) *string {
	if text == nil {
		return nil
	}
	s := SanitizeText(*text)
	if s == "" {
		return nil
	}
	return &s
}

// ValidateLeaderboardWindow validates a leaderboard window selector. Empty is
// rejected here; defaulting happens where the query string is read.
func ValidateLeaderboardWindow(value string) error {
	if value == "" {
		return fmt.Errorf("invalid window: must be 'week', 'month', or 'all'")
	}
	_, err := analytics.ParseLeaderboardWindow(value)
	return err
}

// FirstError renders the first field error of a validation failure
func FirstError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			return fmt.Sprintf("Validation failed: %s", fieldError.Error())
		}
	}
	return "Validation failed"
}
