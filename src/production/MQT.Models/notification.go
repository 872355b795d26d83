package mqtmodels

import "time"

// NotificationMessage is pushed to a device owner when the advisor raises something
type NotificationMessage struct {
	Type      AdvisorResult `json:"type"`
	PlantID   string        `json:"plantId"`
	Timestamp time.Time     `json:"timestamp"`
	Title     string        `json:"title"`
	Action    string        `json:"action"`
}
