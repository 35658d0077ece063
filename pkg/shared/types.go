package shared

import (
	"time"
)

// API response envelope
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Event is an activity published on the activity stream. ID doubles as
// the activity id and the JetStream dedup id.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	UserID    string         `json:"user_id"`
	ObjectID  string         `json:"object_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version,omitempty"`
	Uptime    time.Duration     `json:"uptime,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeInternal       = "INTERNAL_ERROR"
)

// Activity types
const (
	ActivityNewPackage          = "new package"
	ActivityChangedPackage      = "changed package"
	ActivityDeletedPackage      = "deleted package"
	ActivityNewGroup            = "new group"
	ActivityChangedGroup        = "changed group"
	ActivityNewOrganization     = "new organization"
	ActivityChangedOrganization = "changed organization"
	ActivityNewUser             = "new user"
)

// EventSource identifies events published by this service.
const EventSource = "datacatalog"
