package validation

import (
	"math"
	"regexp"
	"unicode"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{3,32}$`)

// Display names: letters, digits, spaces, hyphens, apostrophes, dots, ampersands.
var nameRe = regexp.MustCompile(`^[\p{L}0-9\s\-'.&]+$`)

func IsValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

// IsValidPassword requires at least 8 characters with a letter and a number.
func IsValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func IsValidName(name string) bool {
	return name != "" && nameRe.MatchString(name)
}

// IsPositive reports whether v is a finite number greater than zero.
func IsPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// IsNonNegative reports whether v is a finite number >= 0.
func IsNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
