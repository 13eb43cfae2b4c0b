package db_models

import (
	"regexp"
	"strings"
	"time"
)

const DefaultContainerCapacity = 40

type Site struct {
	PK                string            `dynamodbav:"PK" json:"-"`
	SK                string            `dynamodbav:"SK" json:"-"`
	Type              string            `dynamodbav:"type" json:"-"`
	ID                string            `dynamodbav:"id" json:"id"`
	Name              string            `dynamodbav:"name" json:"name"`
	Address           string            `dynamodbav:"address" json:"address"`
	ContainerCapacity int               `dynamodbav:"containerCapacity" json:"containerCapacity"`
	MapImageKey       string            `dynamodbav:"mapImageKey,omitempty" json:"mapImageKey,omitempty"`
	PriceIDs          map[string]string `dynamodbav:"priceIds,omitempty" json:"priceIds,omitempty"`
	CreatedAt         time.Time         `dynamodbav:"createdAt" json:"createdAt"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9-]+`)

// SiteSlug derives the site id from its display name, e.g. "Edwardstown" -> "edwardstown".
func SiteSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), "-")
	return nonSlug.ReplaceAllString(s, "")
}

func NewSite(name, address string, now time.Time) *Site {
	id := SiteSlug(name)
	return &Site{
		PK:                SitePK(id),
		SK:                SiteMetadataSK,
		Type:              TypeSite,
		ID:                id,
		Name:              strings.TrimSpace(name),
		Address:           address,
		ContainerCapacity: DefaultContainerCapacity,
		CreatedAt:         now,
	}
}

// PriceFor returns the site-level recurring price override, if any.
func (s *Site) PriceFor(f BillingFrequency) string {
	if s == nil || s.PriceIDs == nil {
		return ""
	}
	return s.PriceIDs[string(f)]
}
