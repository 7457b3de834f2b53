// db/sqlite.go
package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stronghold-io/bastion/config"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
)

var SQLite *gorm.DB

// InitSQLite opens the local security store and migrates the models the
// core owns: firewall rules, encryption keys, devices and their sessions.
func InitSQLite() error {
	path := config.GetString("sqlite.path")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.FirewallRule{},
		&model.EncryptionKey{},
		&model.Device{},
		&model.DeviceSession{},
	); err != nil {
		return fmt.Errorf("migrate security store: %w", err)
	}

	SQLite = db
	logger.Info("Security store ready")
	return nil
}
