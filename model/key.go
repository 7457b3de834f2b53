package model

import "time"

// KeyStatus is the lifecycle state of an encryption key. A key moves
// ACTIVE -> ROTATED -> RETIRED and never backwards; at most one key is
// ACTIVE at a time.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusRotated KeyStatus = "ROTATED"
	KeyStatusRetired KeyStatus = "RETIRED"
)

// EncryptionKey is the persisted record of a managed key. The key material
// itself is never stored; it is derived from the master secret and KeyID.
type EncryptionKey struct {
	ID        uint       `json:"-" gorm:"primaryKey"`
	KeyID     string     `json:"key_id" gorm:"uniqueIndex;not null"`
	Algorithm string     `json:"algorithm" gorm:"not null"`
	Status    KeyStatus  `json:"status" gorm:"index;not null"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}

// KeyInfo is the externally visible view of a key.
type KeyInfo struct {
	KeyID     string     `json:"key_id"`
	Algorithm string     `json:"algorithm"`
	Status    KeyStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}

// Info converts the stored record to its API view.
func (k *EncryptionKey) Info() KeyInfo {
	return KeyInfo{
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		Status:    k.Status,
		CreatedAt: k.CreatedAt,
		RotatedAt: k.RotatedAt,
	}
}
