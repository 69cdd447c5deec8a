package model

import "time"

// Alert is the persisted record for an alert-worthy verdict.
type Alert struct {
	ID        int64     `json:"id"`
	Host      string    `json:"host"`
	Path      string    `json:"path"`
	Severity  Severity  `json:"severity"`
	FME       float64   `json:"fme"`
	ABT       float64   `json:"abt"`
	Category  Category  `json:"type"`
	Reasons   []string  `json:"reasons,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FileEvent is the persisted "file seen" record, written for every
// evaluated change whether or not it raised an alert.
type FileEvent struct {
	ID        int64      `json:"id"`
	Path      string     `json:"path"`
	Action    FileAction `json:"action"`
	FME       float64    `json:"fme"`
	CreatedAt time.Time  `json:"created_at"`
}

// User is an operator account for the REST API.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Metrics summarizes persisted alert counts for the dashboard.
type Metrics struct {
	TotalAlerts      int64 `json:"total_alerts"`
	CriticalAlerts   int64 `json:"critical_alerts"`
	HighAlerts       int64 `json:"high_alerts"`
	RansomwareAlerts int64 `json:"ransomware_alerts"`
	RaaSAlerts       int64 `json:"raas_alerts"`
}
