// keymanager/manager.go
package keymanager

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"gorm.io/gorm"

	bastion_errors "github.com/stronghold-io/bastion/errors"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/metrics"
	"github.com/stronghold-io/bastion/model"
	"github.com/stronghold-io/bastion/util"
)

const (
	rotationLockName = "key-rotation"
	rotationLockTTL  = 10 * time.Second
	hkdfInfo         = "bastion-field-encryption"
)

// DistLock serializes key rotation across instances. A nil lock degrades to
// single-instance semantics.
type DistLock interface {
	Lock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, resource string) error
}

// Manager owns the encryption key lifecycle and all field/at-rest
// encryption. Key material is never persisted: each key's AES-256 key is
// derived from the master secret and the key id, so rotated keys stay
// decryptable without storing anything secret per key.
type Manager struct {
	db         *gorm.DB
	master     []byte
	defaultAlg string
	lock       DistLock
	notifier   *util.NotificationService
	events     *util.EventBus
}

func NewManager(db *gorm.DB, masterSecret string, defaultAlg string, lock DistLock, notifier *util.NotificationService, events *util.EventBus) *Manager {
	return &Manager{
		db:         db,
		master:     []byte(masterSecret),
		defaultAlg: defaultAlg,
		lock:       lock,
		notifier:   notifier,
		events:     events,
	}
}

// CreateKey creates the first ACTIVE key. Once one exists, RotateKey is the
// only way to replace it; creating a second active key is refused so the
// single-active invariant can never be violated.
func (m *Manager) CreateKey(ctx context.Context, algorithm string) (*model.KeyInfo, error) {
	if algorithm == "" {
		algorithm = m.defaultAlg
	}

	var key model.EncryptionKey
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.EncryptionKey{}).
			Where("status = ?", model.KeyStatusActive).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return bastion_errors.ErrActiveKeyExists
		}

		key = model.EncryptionKey{
			KeyID:     uuid.New().String(),
			Algorithm: algorithm,
			Status:    model.KeyStatusActive,
		}
		return tx.Create(&key).Error
	})
	if err != nil {
		if errors.Is(err, bastion_errors.ErrActiveKeyExists) {
			return nil, err
		}
		logger.Error("Failed to create encryption key", zap.Error(err))
		return nil, bastion_errors.ErrDatabaseOperation
	}

	logger.Info("Encryption key created",
		zap.String("keyID", key.KeyID),
		zap.String("algorithm", key.Algorithm))
	info := key.Info()
	return &info, nil
}

// RotateKey marks the current ACTIVE key ROTATED and creates its
// replacement inside one transaction: no externally observable state has
// zero or two active keys.
func (m *Manager) RotateKey(ctx context.Context) (*model.KeyInfo, error) {
	if m.lock != nil {
		locked, err := m.lock.Lock(ctx, rotationLockName, rotationLockTTL)
		if err != nil {
			logger.Error("Failed to acquire rotation lock", zap.Error(err))
			return nil, bastion_errors.ErrInternalServer
		}
		if !locked {
			return nil, fmt.Errorf("key rotation already in progress")
		}
		defer func() {
			if err := m.lock.Unlock(ctx, rotationLockName); err != nil {
				logger.Error("Failed to release rotation lock", zap.Error(err))
			}
		}()
	}

	var oldKey, newKey model.EncryptionKey
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", model.KeyStatusActive).First(&oldKey).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bastion_errors.ErrNoActiveKey
			}
			return err
		}

		now := time.Now()
		oldKey.Status = model.KeyStatusRotated
		oldKey.RotatedAt = &now
		if err := tx.Save(&oldKey).Error; err != nil {
			return err
		}

		newKey = model.EncryptionKey{
			KeyID:     uuid.New().String(),
			Algorithm: oldKey.Algorithm,
			Status:    model.KeyStatusActive,
		}
		return tx.Create(&newKey).Error
	})
	if err != nil {
		if errors.Is(err, bastion_errors.ErrNoActiveKey) {
			return nil, err
		}
		logger.Error("Key rotation failed", zap.Error(err))
		return nil, bastion_errors.ErrDatabaseOperation
	}

	metrics.IncKeyRotation()
	logger.Info("Encryption key rotated",
		zap.String("oldKeyID", oldKey.KeyID),
		zap.String("newKeyID", newKey.KeyID))

	if m.notifier != nil {
		if err := m.notifier.NotifyKeyRotated(ctx, oldKey.KeyID, newKey.KeyID); err != nil {
			logger.Warn("Failed to send rotation notification", zap.Error(err))
		}
	}
	if m.events != nil {
		m.events.Publish(ctx, util.EventKeyRotated, newKey.Info())
	}

	info := newKey.Info()
	return &info, nil
}

// RetireKey retires a ROTATED key. Retiring the ACTIVE key is a lifecycle
// violation and is rejected rather than rotating on the caller's behalf.
func (m *Manager) RetireKey(ctx context.Context, keyID string) error {
	var key model.EncryptionKey
	err := m.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bastion_errors.ErrKeyNotFound
		}
		return bastion_errors.ErrDatabaseOperation
	}

	switch key.Status {
	case model.KeyStatusActive:
		return bastion_errors.ErrKeyNotRotated
	case model.KeyStatusRetired:
		return bastion_errors.ErrKeyRetired
	}

	key.Status = model.KeyStatusRetired
	if err := m.db.WithContext(ctx).Save(&key).Error; err != nil {
		logger.Error("Failed to retire key", zap.Error(err), zap.String("keyID", keyID))
		return bastion_errors.ErrDatabaseOperation
	}

	logger.Info("Encryption key retired", zap.String("keyID", keyID))
	return nil
}

// ActiveKey returns the current ACTIVE key record.
func (m *Manager) ActiveKey(ctx context.Context) (*model.EncryptionKey, error) {
	var key model.EncryptionKey
	err := m.db.WithContext(ctx).Where("status = ?", model.KeyStatusActive).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bastion_errors.ErrNoActiveKey
		}
		return nil, bastion_errors.ErrDatabaseOperation
	}
	return &key, nil
}

// ListKeys returns all key records, newest first.
func (m *Manager) ListKeys(ctx context.Context) ([]model.KeyInfo, error) {
	var keys []model.EncryptionKey
	if err := m.db.WithContext(ctx).Order("created_at desc").Find(&keys).Error; err != nil {
		return nil, bastion_errors.ErrDatabaseOperation
	}
	infos := make([]model.KeyInfo, len(keys))
	for i := range keys {
		infos[i] = keys[i].Info()
	}
	return infos, nil
}

// EncryptDataAtRest encrypts a payload under the current ACTIVE key. The
// ciphertext embeds the key id so decryption works across rotations.
func (m *Manager) EncryptDataAtRest(ctx context.Context, plaintext string) (string, error) {
	key, err := m.ActiveKey(ctx)
	if err != nil {
		return "", err
	}

	gcm, err := m.cipherFor(key.KeyID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return key.KeyID + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptDataAtRest reverses EncryptDataAtRest. Ciphertext produced under a
// ROTATED key still decrypts; a RETIRED key does not.
func (m *Manager) DecryptDataAtRest(ctx context.Context, ciphertext string) (string, error) {
	keyID, payload, found := strings.Cut(ciphertext, ":")
	if !found || keyID == "" {
		return "", bastion_errors.ErrMalformedCipher
	}

	var key model.EncryptionKey
	err := m.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", bastion_errors.ErrKeyNotFound
		}
		return "", bastion_errors.ErrDatabaseOperation
	}
	if key.Status == model.KeyStatusRetired {
		return "", bastion_errors.ErrKeyRetired
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", bastion_errors.ErrMalformedCipher
	}

	gcm, err := m.cipherFor(keyID)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", bastion_errors.ErrMalformedCipher
	}

	nonce, ct := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// EncryptFields returns a copy of the record with each named string field
// replaced by its ciphertext. Absent and non-string fields are untouched.
func (m *Manager) EncryptFields(ctx context.Context, record map[string]interface{}, fields []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, field := range fields {
		value, ok := out[field]
		if !ok {
			continue
		}
		plaintext, ok := value.(string)
		if !ok {
			continue
		}
		ciphertext, err := m.EncryptDataAtRest(ctx, plaintext)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %s: %w", field, err)
		}
		out[field] = ciphertext
	}
	return out, nil
}

// DecryptFields reverses EncryptFields. A field that fails to decrypt is
// logged and left as-is so one corrupt field never loses the rest of the
// record.
func (m *Manager) DecryptFields(ctx context.Context, record map[string]interface{}, fields []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, field := range fields {
		value, ok := out[field]
		if !ok {
			continue
		}
		ciphertext, ok := value.(string)
		if !ok {
			continue
		}
		plaintext, err := m.DecryptDataAtRest(ctx, ciphertext)
		if err != nil {
			logger.Warn("Field decryption failed, leaving field unchanged",
				zap.Error(err),
				zap.String("field", field))
			continue
		}
		out[field] = plaintext
	}
	return out, nil
}

// cipherFor derives the key's AES-256-GCM cipher from the master secret,
// salted with the key id.
func (m *Manager) cipherFor(keyID string) (cipher.AEAD, error) {
	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, m.master, []byte(keyID), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
