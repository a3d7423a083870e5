// Package phone normalizes profile phone numbers to E.164 before they are
// written to the account store.
package phone

import (
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// Normalize parses a phone number and returns its E.164 form
// (+15551234567). countryCode is the ISO region used for national-format
// input; it defaults to US.
func Normalize(number, countryCode string) (string, error) {
	if number == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if countryCode == "" {
		countryCode = "US"
	}

	parsed, err := phonenumbers.Parse(number, countryCode)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number")
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// IsValid reports whether the number parses and is valid for its region.
func IsValid(number, countryCode string) bool {
	_, err := Normalize(number, countryCode)
	return err == nil
}
