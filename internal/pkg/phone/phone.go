// Package phone validates Indonesian mobile numbers before they reach the
// delivery pipeline. Only format is checked here; existence on the network is
// verified separately against a live session.
package phone

import "strings"

const repeatedRunLimit = 8

// Digits strips everything except decimal digits.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// IsValidFormat reports whether the number looks like a deliverable mobile
// number. Accepted shapes after stripping separators:
//
//	08xxxxxxxxx   local, 10-13 digits
//	628xxxxxxxxx  international, 10-15 digits
//	8xxxxxxxxx    bare local without the leading zero, 9-13 digits
//
// Runs of 8 or more identical digits are rejected regardless of shape; those
// are invariably typos or placeholder numbers.
func IsValidFormat(number string) bool {
	digits := Digits(number)
	if digits == "" {
		return false
	}
	if hasRepeatedRun(digits, repeatedRunLimit) {
		return false
	}

	switch {
	case strings.HasPrefix(digits, "62"):
		return len(digits) >= 10 && len(digits) <= 15 && digits[2] == '8'
	case strings.HasPrefix(digits, "0"):
		return len(digits) >= 10 && len(digits) <= 13 && digits[1] == '8'
	case strings.HasPrefix(digits, "8"):
		return len(digits) >= 9 && len(digits) <= 13
	default:
		return false
	}
}

// Normalize converts a valid local number to international digits (628...).
// Invalid or foreign-looking input is returned stripped but otherwise as-is.
func Normalize(number string) string {
	digits := Digits(number)
	switch {
	case strings.HasPrefix(digits, "62"):
		return digits
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	default:
		return digits
	}
}

func hasRepeatedRun(digits string, limit int) bool {
	run := 0
	var prev byte
	for i := 0; i < len(digits); i++ {
		if i > 0 && digits[i] == prev {
			run++
		} else {
			run = 1
			prev = digits[i]
		}
		if run >= limit {
			return true
		}
	}
	return false
}
