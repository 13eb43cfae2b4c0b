package db_models

import (
	"strings"
	"time"
)

const (
	WaitingListPK      = "WAITLIST"
	waitingEntryPrefix = "EMAIL#"
)

type WaitingStatus string

const (
	WaitingStatusWaiting        WaitingStatus = "waiting"
	WaitingStatusNotified       WaitingStatus = "notified"
	WaitingStatusPaidUnassigned WaitingStatus = "paid-unassigned"
	WaitingStatusConverted      WaitingStatus = "converted"
)

type WaitingListEntry struct {
	PK                string        `dynamodbav:"PK" json:"-"`
	SK                string        `dynamodbav:"SK" json:"-"`
	Email             string        `dynamodbav:"email" json:"email"`
	Name              string        `dynamodbav:"name,omitempty" json:"name,omitempty"`
	JoinedDate        time.Time     `dynamodbav:"joinedDate" json:"joinedDate"`
	Status            WaitingStatus `dynamodbav:"status" json:"status"`
	BillingCustomerID string        `dynamodbav:"billingCustomerId,omitempty" json:"billingCustomerId,omitempty"`
	NotifiedAt        *time.Time    `dynamodbav:"notifiedAt,omitempty" json:"notifiedAt,omitempty"`
}

func WaitingEntrySK(email string) string {
	return waitingEntryPrefix + NormalizeEmail(email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewWaitingListEntry(email, name string, status WaitingStatus, now time.Time) *WaitingListEntry {
	return &WaitingListEntry{
		PK:         WaitingListPK,
		SK:         WaitingEntrySK(email),
		Email:      NormalizeEmail(email),
		Name:       name,
		JoinedDate: now,
		Status:     status,
	}
}
