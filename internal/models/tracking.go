package models

import "time"

type TrackingStatus string

const (
	StatusActive   TrackingStatus = "active"
	StatusPending  TrackingStatus = "pending"
	StatusInactive TrackingStatus = "inactive"
	StatusArchived TrackingStatus = "archived"
)

// TrackingStatuses lists the accepted statuses in display order.
var TrackingStatuses = []TrackingStatus{StatusActive, StatusPending, StatusInactive, StatusArchived}

func (s TrackingStatus) Valid() bool {
	for _, v := range TrackingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// TrackingEntry is a project's row in the dashboard tracking table.
type TrackingEntry struct {
	ID        int64          `json:"id"`
	ProjectID int64          `json:"nid"`
	Status    TrackingStatus `json:"status"`
	AddedDate time.Time      `json:"added_date"`
	AddedBy   int64          `json:"added_by"`
	Notes     string         `json:"notes"`
	Updated   *time.Time     `json:"updated"`
}
