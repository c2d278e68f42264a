package db

import (
	"fmt"

	"github.com/anit-serv/greenroom/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from database configuration.
func DSN(cfg config.DatabaseConfig) string {
	cred := cfg.User
	if cfg.Password != "" {
		cred += ":" + cfg.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4", cred, cfg.Host, cfg.Port, cfg.Name)
}

// Connect opens a GORM connection to the configured MySQL database.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return db, nil
}

// ConnectAdmin opens a GORM connection without selecting a database,
// used for CREATE DATABASE during db init.
func ConnectAdmin(cfg config.DatabaseConfig) (*gorm.DB, error) {
	admin := cfg
	admin.Name = ""
	db, err := gorm.Open(mysql.Open(DSN(admin)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}
