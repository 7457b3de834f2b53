package model

import "time"

// AccessRequest describes a single attempt by a principal to perform an
// action on a resource. Built per call, never persisted.
type AccessRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	ResourceType string `json:"resource_type" binding:"required"`
	Action       string `json:"action" binding:"required"`
	ResourceID   string `json:"resource_id,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// AccessDecision is the outcome of evaluating an AccessRequest. Immutable
// once produced; the decision cache stores copies, never shared pointers.
type AccessDecision struct {
	Allowed     bool          `json:"allowed"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration"`
	FromCache   bool          `json:"from_cache"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// CachedDecision pairs a decision with its creation time so lookups can
// apply TTL expiry lazily.
type CachedDecision struct {
	Decision  AccessDecision `json:"decision"`
	CreatedAt time.Time      `json:"created_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (c CachedDecision) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) >= ttl
}
