// devicetrust/manager.go
package devicetrust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	bastion_errors "github.com/stronghold-io/bastion/errors"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/metrics"
	"github.com/stronghold-io/bastion/model"
	"github.com/stronghold-io/bastion/util"
)

const (
	minTrustScore = 0
	maxTrustScore = 100
)

// Thresholds are the trust-score cut-offs for access levels. Full must be
// >= Restricted; the mapping stays monotonic for any values satisfying that.
type Thresholds struct {
	Full       int
	Restricted int
}

// CacheInvalidator is the slice of the decision engine the trust manager
// needs after a compromise: flushing the owner's cached decisions.
type CacheInvalidator interface {
	InvalidateUserCache(ctx context.Context, userID string) int
}

// Manager owns devices and their sessions: fingerprinting, trust scoring,
// session issuance and the compromise cascade.
type Manager struct {
	db          *gorm.DB
	invalidator CacheInvalidator
	notifier    *util.NotificationService
	events      *util.EventBus
	jwtSecret   []byte
	sessionTTL  time.Duration

	mu         sync.RWMutex
	thresholds Thresholds
	initialScore int
}

func NewManager(
	db *gorm.DB,
	invalidator CacheInvalidator,
	notifier *util.NotificationService,
	events *util.EventBus,
	jwtSecret []byte,
	sessionTTL time.Duration,
	thresholds Thresholds,
	initialScore int,
) *Manager {
	return &Manager{
		db:           db,
		invalidator:  invalidator,
		notifier:     notifier,
		events:       events,
		jwtSecret:    jwtSecret,
		sessionTTL:   sessionTTL,
		thresholds:   thresholds,
		initialScore: initialScore,
	}
}

// SetThresholds applies new cut-offs at runtime (config hot reload).
func (m *Manager) SetThresholds(t Thresholds) {
	if t.Full < t.Restricted {
		logger.Warn("Rejecting non-monotonic trust thresholds",
			zap.Int("full", t.Full),
			zap.Int("restricted", t.Restricted))
		return
	}
	m.mu.Lock()
	m.thresholds = t
	m.mu.Unlock()
	logger.Info("Trust thresholds updated",
		zap.Int("full", t.Full),
		zap.Int("restricted", t.Restricted))
}

// AccessLevelFor maps a trust score to an access level. A single descending
// comparison chain keeps the mapping monotonic: a higher score can never
// land on a stricter level than a lower one.
func (m *Manager) AccessLevelFor(score int) model.AccessLevel {
	m.mu.RLock()
	t := m.thresholds
	m.mu.RUnlock()

	switch {
	case score > t.Full:
		return model.AccessLevelFull
	case score >= t.Restricted:
		return model.AccessLevelRestricted
	default:
		return model.AccessLevelDenied
	}
}

// Fingerprint derives a stable identifier from the device's observable
// signals. Signals are canonically ordered before hashing so identical sets
// always produce identical fingerprints regardless of map iteration order.
// Keys and values are length-prefixed: the encoding of one signal set can
// never be reproduced by delimiter characters inside another set's values.
func Fingerprint(signals map[string]string) string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%d:%s%d:%s", len(k), k, len(signals[k]), signals[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RegisterDevice records a device for the user, or returns the existing one
// when the fingerprint is already known.
func (m *Manager) RegisterDevice(ctx context.Context, userID string, signals map[string]string) (*model.Device, error) {
	fingerprint := Fingerprint(signals)

	var device model.Device
	err := m.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&device).Error
	if err == nil {
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bastion_errors.ErrDatabaseOperation
	}

	device = model.Device{
		Fingerprint: fingerprint,
		UserID:      userID,
		TrustScore:  m.initialScore,
		AccessLevel: m.AccessLevelFor(m.initialScore),
		Status:      model.DeviceStatusActive,
	}
	if err := m.db.WithContext(ctx).Create(&device).Error; err != nil {
		logger.Error("Failed to register device", zap.Error(err), zap.String("userID", userID))
		return nil, bastion_errors.ErrDatabaseOperation
	}

	logger.Info("Device registered",
		zap.String("fingerprint", fingerprint),
		zap.String("userID", userID),
		zap.Int("trustScore", device.TrustScore))
	return &device, nil
}

// GetDevice loads a device with its sessions.
func (m *Manager) GetDevice(ctx context.Context, fingerprint string) (*model.Device, error) {
	var device model.Device
	err := m.db.WithContext(ctx).Preload("Sessions").Where("fingerprint = ?", fingerprint).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bastion_errors.ErrDeviceNotFound
		}
		return nil, bastion_errors.ErrDatabaseOperation
	}
	return &device, nil
}

// UpdateTrustScore applies a signed delta to the device's trust score,
// clamps it to [0,100] and recomputes the access level.
func (m *Manager) UpdateTrustScore(ctx context.Context, fingerprint string, delta int) (*model.Device, error) {
	var device model.Device
	err := m.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bastion_errors.ErrDeviceNotFound
		}
		return nil, bastion_errors.ErrDatabaseOperation
	}

	score := device.TrustScore + delta
	if score < minTrustScore {
		score = minTrustScore
	}
	if score > maxTrustScore {
		score = maxTrustScore
	}

	device.TrustScore = score
	device.AccessLevel = m.AccessLevelFor(score)

	if err := m.db.WithContext(ctx).Save(&device).Error; err != nil {
		logger.Error("Failed to update trust score", zap.Error(err), zap.String("fingerprint", fingerprint))
		return nil, bastion_errors.ErrDatabaseOperation
	}

	logger.Info("Trust score updated",
		zap.String("fingerprint", fingerprint),
		zap.Int("delta", delta),
		zap.Int("trustScore", score),
		zap.String("accessLevel", string(device.AccessLevel)))
	return &device, nil
}

// sessionClaims is the JWT payload of a device session token.
type sessionClaims struct {
	SessionID   string `json:"sid"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// CreateSession issues a new session for the device. Compromised devices are
// rejected outright. The status check and the insert share one transaction:
// a compromise cascade committing concurrently either lands before it (the
// check sees COMPROMISED) or after it (the cascade's bulk update sees the
// new row), so no active session can outlive a compromise either way.
func (m *Manager) CreateSession(ctx context.Context, fingerprint string) (*model.DeviceSession, error) {
	var session model.DeviceSession
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device model.Device
		if err := tx.Where("fingerprint = ?", fingerprint).First(&device).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bastion_errors.ErrDeviceNotFound
			}
			return err
		}

		if device.Status == model.DeviceStatusCompromised {
			return bastion_errors.ErrDeviceCompromised
		}

		session = model.DeviceSession{
			DeviceID:  device.ID,
			ExpiresAt: time.Now().Add(m.sessionTTL),
			Active:    true,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		token, err := m.signToken(session.UUID, fingerprint, device.UserID, session.ExpiresAt)
		if err != nil {
			return err
		}
		session.Token = token
		return tx.Save(&session).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, bastion_errors.ErrDeviceNotFound):
			return nil, err
		case errors.Is(err, bastion_errors.ErrDeviceCompromised):
			logger.Warn("Refusing session for compromised device", zap.String("fingerprint", fingerprint))
			return nil, err
		default:
			logger.Error("Failed to create session", zap.Error(err), zap.String("fingerprint", fingerprint))
			return nil, bastion_errors.ErrDatabaseOperation
		}
	}

	logger.Info("Session created",
		zap.String("session", session.UUID),
		zap.String("fingerprint", fingerprint))
	return &session, nil
}

func (m *Manager) signToken(sessionID, fingerprint, userID string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
}

// ValidateSession verifies the token signature and checks the stored
// session is still active on a non-compromised device.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*model.DeviceSession, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, bastion_errors.ErrInvalidSessionToken
	}

	var session model.DeviceSession
	err = m.db.WithContext(ctx).Where("uuid = ?", claims.SessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bastion_errors.ErrSessionNotFound
		}
		return nil, bastion_errors.ErrDatabaseOperation
	}

	if !session.Active || time.Now().After(session.ExpiresAt) {
		return nil, bastion_errors.ErrSessionInactive
	}

	var device model.Device
	if err := m.db.WithContext(ctx).First(&device, session.DeviceID).Error; err != nil {
		return nil, bastion_errors.ErrDatabaseOperation
	}
	if device.Status == model.DeviceStatusCompromised {
		return nil, bastion_errors.ErrDeviceCompromised
	}

	return &session, nil
}

// MarkCompromised flips the device to COMPROMISED and deactivates every
// owned session in one transaction, so no observer can see a compromised
// device with a live session. Cache invalidation and notifications fan out
// after the commit.
func (m *Manager) MarkCompromised(ctx context.Context, fingerprint string) error {
	var device model.Device
	var revoked int64

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint = ?", fingerprint).First(&device).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bastion_errors.ErrDeviceNotFound
			}
			return err
		}

		if err := tx.Model(&device).Update("status", model.DeviceStatusCompromised).Error; err != nil {
			return err
		}

		result := tx.Model(&model.DeviceSession{}).
			Where("device_id = ? AND active = ?", device.ID, true).
			Update("active", false)
		if result.Error != nil {
			return result.Error
		}
		revoked = result.RowsAffected
		return nil
	})
	if err != nil {
		if errors.Is(err, bastion_errors.ErrDeviceNotFound) {
			return err
		}
		logger.Error("Compromise cascade failed", zap.Error(err), zap.String("fingerprint", fingerprint))
		return bastion_errors.ErrDatabaseOperation
	}

	metrics.AddSessionsRevoked(int(revoked))
	logger.Warn("Device marked compromised",
		zap.String("fingerprint", fingerprint),
		zap.String("userID", device.UserID),
		zap.Int64("sessionsRevoked", revoked))

	// Post-commit side effects. Failures here are logged, never unwound:
	// the revocation itself is already durable.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.invalidator.InvalidateUserCache(gctx, device.UserID)
		return nil
	})
	g.Go(func() error {
		return m.notifier.NotifyDeviceCompromised(gctx, fingerprint, int(revoked))
	})
	if m.events != nil {
		m.events.Publish(ctx, util.EventDeviceCompromised, device)
	}
	if err := g.Wait(); err != nil {
		logger.Error("Compromise side effects incomplete", zap.Error(err), zap.String("fingerprint", fingerprint))
	}

	return nil
}

// ExpireSessions deactivates sessions past their expiry. Scheduled
// periodically; ValidateSession already checks expiry on every call.
func (m *Manager) ExpireSessions(ctx context.Context) int {
	result := m.db.WithContext(ctx).Model(&model.DeviceSession{}).
		Where("active = ? AND expires_at < ?", true, time.Now()).
		Update("active", false)
	if result.Error != nil {
		logger.Error("Session expiry sweep failed", zap.Error(result.Error))
		return 0
	}
	if result.RowsAffected > 0 {
		logger.Info("Expired sessions deactivated", zap.Int64("count", result.RowsAffected))
	}
	return int(result.RowsAffected)
}
