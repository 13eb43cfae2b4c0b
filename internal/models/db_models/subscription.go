package db_models

type SubscriptionStatus string

const (
	SubStatusInactive SubscriptionStatus = "inactive"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

type BondStatus string

const (
	BondUnpaid BondStatus = "unpaid"
	BondPaid   BondStatus = "paid"
)

type BillingFrequency string

const (
	FrequencyWeekly      BillingFrequency = "weekly"
	FrequencyFortnightly BillingFrequency = "fortnightly"
	FrequencyMonthly     BillingFrequency = "monthly"
)

// Valid reports whether f is one of the offered billing frequencies.
func (f BillingFrequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyFortnightly, FrequencyMonthly:
		return true
	}
	return false
}

// Period is the length of one billing cycle.
func (f BillingFrequency) Period() (days int) {
	switch f {
	case FrequencyFortnightly:
		return 14
	case FrequencyMonthly:
		return 28
	default:
		return 7
	}
}
