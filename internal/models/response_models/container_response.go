package response_models

import (
	"time"

	"storehere/internal/models/db_models"
)

type AvailabilityResponse struct {
	Available       bool   `json:"available"`
	WaitingList     bool   `json:"waitingList"`
	SiteID          string `json:"siteId,omitempty"`
	SiteName        string `json:"siteName,omitempty"`
	ContainerNumber string `json:"containerNumber,omitempty"`
}

type SiteContainersResponse struct {
	Site       *db_models.Site        `json:"site"`
	Containers []*db_models.Container `json:"containers"`
	Counts     map[string]int         `json:"counts"`
}

type DocumentResponse struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	URL          string    `json:"url"`
}
