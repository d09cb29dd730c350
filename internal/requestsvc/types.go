package requestsvc

import (
	"strings"
	"time"

	"water-dispatch-backend/internal/geo"
)

// Priority is the urgency the request service assigns to a request.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Status is owned by the request service; the client never derives it.
type Status string

const (
	StatusPending      Status = "Pending"
	StatusApprovedSent Status = "Approved-Sent"
	StatusRejected     Status = "Rejected"
	StatusInProgress   Status = "InProgress"
	StatusCompleted    Status = "Completed"
)

var knownStatuses = []Status{StatusPending, StatusApprovedSent, StatusRejected, StatusInProgress, StatusCompleted}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	for _, known := range knownStatuses {
		if strings.EqualFold(string(known), strings.TrimSpace(s)) {
			return known, true
		}
	}
	return "", false
}

// IsCompleted reports whether the delivery has been confirmed.
func (s Status) IsCompleted() bool {
	return strings.EqualFold(string(s), string(StatusCompleted))
}

// EmergencyRequest is the request record exchanged with the service.
type EmergencyRequest struct {
	ID                  string          `json:"id,omitempty"`
	RequesterID         string          `json:"requesterId"`
	RequesterLabel      string          `json:"requesterLabel"`
	LocationLabel       string          `json:"locationLabel"`
	Coordinates         geo.Coordinates `json:"coordinates"`
	RequestType         string          `json:"requestType"`
	Priority            Priority        `json:"priority"`
	WaterLevelAtRequest string          `json:"waterLevelAtRequest"`
	Description         string          `json:"description"`
	Status              Status          `json:"status,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
}

// createPayload is an EmergencyRequest without the service-assigned id and status.
type createPayload struct {
	RequesterID         string          `json:"requesterId"`
	RequesterLabel      string          `json:"requesterLabel"`
	LocationLabel       string          `json:"locationLabel"`
	Coordinates         geo.Coordinates `json:"coordinates"`
	RequestType         string          `json:"requestType"`
	Priority            Priority        `json:"priority"`
	WaterLevelAtRequest string          `json:"waterLevelAtRequest"`
	Description         string          `json:"description"`
	CreatedAt           time.Time       `json:"createdAt"`
}

type statusPayload struct {
	Status Status `json:"status"`
}
