package entities

import "strings"

// GuestContext is the reservation data resolved for the person chatting.
// A nil GuestContext means "unidentified guest": the pipeline still
// answers, using only unit-agnostic knowledge.
type GuestContext struct {
	BookingID     string
	PropertyID    string
	GuestLastName string
	GuestLanguage string
	CheckIn       string
	CheckOut      string
}

// NormalizeSignal canonicalizes an identifying signal (typically a phone
// number) so the real and mock providers match bookings the same way.
func NormalizeSignal(signal string) string {
	var b strings.Builder
	for i, r := range signal {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
