package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"db-monitor/pkg/config"
	"db-monitor/pkg/model"
)

// Init connects to the monitor's own MySQL database and migrates the
// instance registry and user tables. The database is created when missing.
func Init(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	dsn := cfg.RegistryDSN()
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(dsn), gcfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") || cfg.MySQLDSN != "" {
			return nil, err
		}
		log.WithField("database", cfg.MySQLDB).Info("creating registry database")
		if cerr := createDatabase(cfg); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		if db, err = gorm.Open(mysql.Open(dsn), gcfg); err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the registry tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Instance{}, &model.User{})
}

func createDatabase(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/", cfg.MySQLUser, cfg.MySQLPass, cfg.MySQLHost, cfg.MySQLPort)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", cfg.MySQLDB))
	return err
}
