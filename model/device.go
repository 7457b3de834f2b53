package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessLevel is the amount of access a device's trust score earns it.
type AccessLevel string

const (
	AccessLevelFull       AccessLevel = "FULL"
	AccessLevelRestricted AccessLevel = "RESTRICTED"
	AccessLevelDenied     AccessLevel = "DENIED"
)

// DeviceStatus is the lifecycle state of a device.
type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "ACTIVE"
	DeviceStatusCompromised DeviceStatus = "COMPROMISED"
)

// Device tracks a client device by its fingerprint. TrustScore moves with
// observed signals; AccessLevel is always recomputed from the score, never
// written independently.
type Device struct {
	ID          uint            `json:"-" gorm:"primaryKey"`
	Fingerprint string          `json:"fingerprint" gorm:"uniqueIndex;not null"`
	UserID      string          `json:"user_id" gorm:"index;not null"`
	TrustScore  int             `json:"trust_score"`
	AccessLevel AccessLevel     `json:"access_level"`
	Status      DeviceStatus    `json:"status" gorm:"default:ACTIVE"`
	Sessions    []DeviceSession `json:"sessions,omitempty" gorm:"foreignKey:DeviceID"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DeviceSession is an authenticated session owned by exactly one device.
// All sessions are deactivated in the same transaction that marks the
// owning device compromised.
type DeviceSession struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	UUID      string    `json:"id" gorm:"uniqueIndex;not null"`
	DeviceID  uint      `json:"-" gorm:"index;not null"`
	Token     string    `json:"token,omitempty" gorm:"type:text"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID for new sessions.
func (s *DeviceSession) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}
