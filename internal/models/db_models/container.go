package db_models

import (
	"strings"
	"time"
)

const (
	TypeContainer = "container"
	TypeSite      = "site"

	sitePrefix      = "SITE#"
	containerPrefix = "CONTAINER#"
	SiteMetadataSK  = "METADATA"
)

func SitePK(siteID string) string { return sitePrefix + siteID }

func ContainerSK(number string) string { return containerPrefix + number }

// ContainerSKPrefix is the sort-key prefix shared by every container of a site.
const ContainerSKPrefix = containerPrefix

// SiteIDFromPK strips the SITE# prefix.
func SiteIDFromPK(pk string) string { return strings.TrimPrefix(pk, sitePrefix) }

type Container struct {
	PK     string `dynamodbav:"PK" json:"-"`
	SK     string `dynamodbav:"SK" json:"-"`
	Type   string `dynamodbav:"type" json:"-"`
	SiteID string `dynamodbav:"siteId" json:"siteId"`
	Number string `dynamodbav:"number" json:"number"`

	Status ContainerStatus `dynamodbav:"status" json:"status"`

	BillingCustomerID      string           `dynamodbav:"billingCustomerId,omitempty" json:"billingCustomerId,omitempty"`
	BillingSubscriptionID  string           `dynamodbav:"billingSubscriptionId,omitempty" json:"billingSubscriptionId,omitempty"`
	BillingPaymentIntentID string           `dynamodbav:"billingPaymentIntentId,omitempty" json:"billingPaymentIntentId,omitempty"`
	BillingFrequency       BillingFrequency `dynamodbav:"billingFrequency,omitempty" json:"billingFrequency,omitempty"`

	SecurityBondStatus BondStatus         `dynamodbav:"securityBondStatus" json:"securityBondStatus"`
	SubscriptionStatus SubscriptionStatus `dynamodbav:"subscriptionStatus" json:"subscriptionStatus"`

	CustomerEmail string `dynamodbav:"customerEmail,omitempty" json:"customerEmail,omitempty"`
	CustomerName  string `dynamodbav:"customerName,omitempty" json:"customerName,omitempty"`
	UserID        string `dynamodbav:"userId,omitempty" json:"userId,omitempty"`

	RentStartDate   *time.Time `dynamodbav:"rentStartDate,omitempty" json:"rentStartDate,omitempty"`
	LastPaymentDate *time.Time `dynamodbav:"lastPaymentDate,omitempty" json:"lastPaymentDate,omitempty"`
	NextDueDate     *time.Time `dynamodbav:"nextDueDate,omitempty" json:"nextDueDate,omitempty"`
	OverdueSince    *time.Time `dynamodbav:"overdueSince,omitempty" json:"overdueSince,omitempty"`

	Notes string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`

	// Version guards every write with an optimistic check.
	Version   int64     `dynamodbav:"version" json:"version"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

func NewContainer(siteID, number string) *Container {
	c := &Container{
		PK:                 SitePK(siteID),
		SK:                 ContainerSK(number),
		Type:               TypeContainer,
		SiteID:             siteID,
		Number:             number,
		SecurityBondStatus: BondUnpaid,
		SubscriptionStatus: SubStatusInactive,
	}
	c.Refresh()
	return c
}

// Refresh recomputes the persisted status copy.
func (c *Container) Refresh() {
	c.Status = EffectiveStatus(c.SubscriptionStatus, c.SecurityBondStatus, c.OverdueSince)
}

func (c *Container) EffectiveStatus() ContainerStatus {
	return EffectiveStatus(c.SubscriptionStatus, c.SecurityBondStatus, c.OverdueSince)
}

func (c *Container) IsAvailable() bool {
	return c.EffectiveStatus() == StatusAvailable
}

// ClaimDetails binds a container to a newly paying customer.
type ClaimDetails struct {
	BillingCustomerID string
	PaymentIntentID   string
	CustomerEmail     string
	CustomerName      string
	UserID            string
	BillingFrequency  BillingFrequency
	TrialPeriod       time.Duration
}

func (c *Container) Claim(d ClaimDetails, now time.Time) {
	next := now.Add(d.TrialPeriod)
	c.BillingCustomerID = d.BillingCustomerID
	c.BillingPaymentIntentID = d.PaymentIntentID
	c.BillingSubscriptionID = ""
	c.BillingFrequency = d.BillingFrequency
	c.CustomerEmail = d.CustomerEmail
	c.CustomerName = d.CustomerName
	c.UserID = d.UserID
	c.SubscriptionStatus = SubStatusTrialing
	c.SecurityBondStatus = BondPaid
	c.RentStartDate = &now
	c.LastPaymentDate = &now
	c.NextDueDate = &next
	c.OverdueSince = nil
	c.Refresh()
}

// RecordPayment applies a successful recurring charge.
func (c *Container) RecordPayment(now time.Time) {
	c.LastPaymentDate = &now
	c.SubscriptionStatus = SubStatusActive
	c.OverdueSince = nil

	period := time.Duration(c.BillingFrequency.Period()) * 24 * time.Hour
	base := now
	if c.NextDueDate != nil && c.NextDueDate.After(now) {
		base = *c.NextDueDate
	}
	next := base.Add(period)
	c.NextDueDate = &next
	c.Refresh()
}

// RecordOpeningPayment applies the subscription's first charge. Inside the
// prepaid period the trial status and due date are left as claimed.
func (c *Container) RecordOpeningPayment(now time.Time) {
	if c.NextDueDate == nil || !c.NextDueDate.After(now) {
		c.RecordPayment(now)
		return
	}
	c.LastPaymentDate = &now
	c.OverdueSince = nil
	c.Refresh()
}

// RecordFailedPayment keeps the first overdue timestamp when failures repeat.
func (c *Container) RecordFailedPayment(now time.Time) {
	c.SubscriptionStatus = SubStatusPastDue
	if c.OverdueSince == nil {
		c.OverdueSince = &now
	}
	c.Refresh()
}

// Release returns the container to stock and drops the customer linkage.
func (c *Container) Release() {
	c.BillingCustomerID = ""
	c.BillingSubscriptionID = ""
	c.BillingPaymentIntentID = ""
	c.BillingFrequency = ""
	c.CustomerEmail = ""
	c.CustomerName = ""
	c.UserID = ""
	c.SubscriptionStatus = SubStatusInactive
	c.SecurityBondStatus = BondUnpaid
	c.RentStartDate = nil
	c.LastPaymentDate = nil
	c.NextDueDate = nil
	c.OverdueSince = nil
	c.Refresh()
}

// Cancel applies a subscription cancellation: a container in arrears is
// abandoned and keeps its linkage for follow up, otherwise it is released.
func (c *Container) Cancel() {
	if c.OverdueSince == nil {
		c.Release()
	}
	c.SubscriptionStatus = SubStatusCanceled
	c.Refresh()
}

func (c *Container) Abandon(now time.Time) {
	c.SubscriptionStatus = SubStatusCanceled
	if c.OverdueSince == nil {
		c.OverdueSince = &now
	}
	c.Refresh()
}
