// audit/model.go
package audit

import "time"

// EventContext carries who performed the audited action and from where.
type EventContext struct {
	UserID    string                 `json:"user_id"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Event is one audit record. The core only ever writes these; it never
// reads them back.
type Event struct {
	Timestamp    time.Time    `json:"timestamp"`
	EventType    string       `json:"event_type"`
	ResourceType string       `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Success      bool         `json:"success"`
	Context      EventContext `json:"context"`
}
