package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleAction is the verdict a firewall rule produces when it matches.
type RuleAction string

const (
	RuleActionAllow RuleAction = "ALLOW"
	RuleActionDeny  RuleAction = "DENY"
)

// Wildcard matches any value for the source, destination or protocol of a
// rule. A port of 0 acts as the wildcard for ports.
const Wildcard = "*"

// FirewallRule matches traffic by source, destination, port and protocol.
// Lower Priority values are evaluated first; the auto-incremented ID breaks
// ties between rules sharing a priority (older rule wins).
type FirewallRule struct {
	ID          uint       `json:"-" gorm:"primaryKey"`
	UUID        string     `json:"id" gorm:"uniqueIndex;not null"`
	Source      string     `json:"source" gorm:"not null"`
	Destination string     `json:"destination" gorm:"not null"`
	Port        int        `json:"port"`
	Protocol    string     `json:"protocol" gorm:"not null"`
	Action      RuleAction `json:"action" gorm:"not null"`
	Priority    int        `json:"priority" gorm:"index;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID for new rules.
func (r *FirewallRule) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return nil
}

// Matches reports whether the rule applies to the given traffic. Each field
// must equal the traffic value or be the wildcard.
func (r *FirewallRule) Matches(t TrafficDescriptor) bool {
	if r.Source != Wildcard && r.Source != t.Source {
		return false
	}
	if r.Destination != Wildcard && r.Destination != t.Destination {
		return false
	}
	if r.Port != 0 && r.Port != t.Port {
		return false
	}
	if r.Protocol != Wildcard && r.Protocol != t.Protocol {
		return false
	}
	return true
}

// TrafficDescriptor is the subject of a firewall decision. Ephemeral.
type TrafficDescriptor struct {
	Source      string `json:"source" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Port        int    `json:"port"`
	Protocol    string `json:"protocol" binding:"required"`
}
