package db_models

import "time"

type ContainerStatus string

const (
	StatusAvailable    ContainerStatus = "available"
	StatusRentedPaid   ContainerStatus = "rented-paid"
	StatusRentedUnpaid ContainerStatus = "rented-unpaid"
	StatusAbandoned    ContainerStatus = "abandoned"
)

// EffectiveStatus is the only place a container's rental status is decided.
// The persisted status attribute is a copy of its result.
func EffectiveStatus(sub SubscriptionStatus, bond BondStatus, overdueSince *time.Time) ContainerStatus {
	overdue := overdueSince != nil && !overdueSince.IsZero()

	switch sub {
	case SubStatusCanceled, SubStatusInactive, "":
		if overdue {
			return StatusAbandoned
		}
		return StatusAvailable
	case SubStatusTrialing, SubStatusActive:
		if overdue || bond != BondPaid {
			return StatusRentedUnpaid
		}
		return StatusRentedPaid
	default:
		// past_due and anything unrecognised is never handed out
		return StatusRentedUnpaid
	}
}
