// firewall/store.go
package firewall

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	bastion_errors "github.com/stronghold-io/bastion/errors"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
)

// Store persists firewall rules and republishes the engine's snapshot after
// every mutation, so evaluation never observes a half-applied rule set.
type Store struct {
	db     *gorm.DB
	engine *Engine
}

func NewStore(db *gorm.DB, engine *Engine) (*Store, error) {
	s := &Store{db: db, engine: engine}
	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("load firewall rules: %w", err)
	}
	return s, nil
}

func (s *Store) reload() error {
	var rules []model.FirewallRule
	if err := s.db.Order("priority asc, id asc").Find(&rules).Error; err != nil {
		return err
	}
	s.engine.Publish(rules)
	return nil
}

// CreateRule validates and persists a rule, then publishes a new snapshot.
func (s *Store) CreateRule(ctx context.Context, rule model.FirewallRule) (*model.FirewallRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&rule).Error; err != nil {
		logger.Error("Failed to create firewall rule", zap.Error(err))
		return nil, bastion_errors.ErrDatabaseOperation
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	logger.Info("Firewall rule created",
		zap.String("rule", rule.UUID),
		zap.Int("priority", rule.Priority),
		zap.String("action", string(rule.Action)))
	return &rule, nil
}

// UpdateRule rewrites the mutable fields of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, uuid string, update model.FirewallRule) (*model.FirewallRule, error) {
	if err := validateRule(update); err != nil {
		return nil, err
	}

	var rule model.FirewallRule
	if err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bastion_errors.ErrRuleNotFound
		}
		return nil, bastion_errors.ErrDatabaseOperation
	}

	rule.Source = update.Source
	rule.Destination = update.Destination
	rule.Port = update.Port
	rule.Protocol = update.Protocol
	rule.Action = update.Action
	rule.Priority = update.Priority

	if err := s.db.WithContext(ctx).Save(&rule).Error; err != nil {
		logger.Error("Failed to update firewall rule", zap.Error(err), zap.String("rule", uuid))
		return nil, bastion_errors.ErrDatabaseOperation
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	logger.Info("Firewall rule updated", zap.String("rule", rule.UUID))
	return &rule, nil
}

// DeleteRule removes a rule and publishes a new snapshot.
func (s *Store) DeleteRule(ctx context.Context, uuid string) error {
	result := s.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&model.FirewallRule{})
	if result.Error != nil {
		logger.Error("Failed to delete firewall rule", zap.Error(result.Error), zap.String("rule", uuid))
		return bastion_errors.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return bastion_errors.ErrRuleNotFound
	}
	if err := s.reload(); err != nil {
		return err
	}

	logger.Info("Firewall rule deleted", zap.String("rule", uuid))
	return nil
}

// ListRules returns rules in evaluation order.
func (s *Store) ListRules(ctx context.Context, limit, offset int) ([]model.FirewallRule, error) {
	var rules []model.FirewallRule
	err := s.db.WithContext(ctx).
		Order("priority asc, id asc").
		Limit(limit).Offset(offset).
		Find(&rules).Error
	if err != nil {
		return nil, bastion_errors.ErrDatabaseOperation
	}
	return rules, nil
}

func validateRule(rule model.FirewallRule) error {
	if rule.Source == "" || rule.Destination == "" || rule.Protocol == "" {
		return bastion_errors.ErrInvalidRuleData
	}
	if rule.Action != model.RuleActionAllow && rule.Action != model.RuleActionDeny {
		return bastion_errors.ErrInvalidRuleData
	}
	if rule.Priority < 0 || rule.Port < 0 || rule.Port > 65535 {
		return bastion_errors.ErrInvalidRuleData
	}
	return nil
}
