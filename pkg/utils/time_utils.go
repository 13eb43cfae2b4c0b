// utils/timeutil.go
package utils

import (
	"fmt"
	"time"
)

// Adelaide time location (ACST/ACDT), where the sites are.
var siteLoc = func() *time.Location {
	if loc, err := time.LoadLocation("Australia/Adelaide"); err == nil {
		return loc
	}
	return time.FixedZone("ACST", 9*3600+1800)
}()

// FromUnixSeconds converts a billing-system epoch in seconds to UTC.
// Returns zero time if t<=0 to let callers decide how to render.
func FromUnixSeconds(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).UTC()
}

// ISODate renders the UTC calendar date used in object keys, e.g. 2025-07-14.
func ISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// FormatDisplay renders a date for customer-facing email.
func FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(siteLoc).Format("2 January 2006")
}

// FormatCents renders minor units as dollars, e.g. 64000 -> "$640.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
