package coreapi

import (
	"regexp"
	"strings"
)

var (
	phonePattern   = regexp.MustCompile(`^(?:\+254|254|0)[17]\d{8}$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "")
)

// ValidatePhoneNumber accepts Safaricom style numbers written as 07.., 01.., 2547.., or +2547...
func ValidatePhoneNumber(phone string) bool {
	return phonePattern.MatchString(phoneSeparator.Replace(strings.TrimSpace(phone)))
}

// NormalizePhoneNumber rewrites a valid number to the 2547XXXXXXXX form Daraja expects.
func NormalizePhoneNumber(phone string) string {
	phone = phoneSeparator.Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(phone, "+254"):
		return phone[1:]
	case strings.HasPrefix(phone, "0"):
		return "254" + phone[1:]
	default:
		return phone
	}
}
