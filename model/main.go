package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"claude-relay/common/config"
	"claude-relay/common/logger"
)

var DB *gorm.DB

func chooseDB(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"):
		return openPostgreSQL(dsn)
	case dsn != "":
		return openMySQL(dsn)
	default:
		return openSQLite()
	}
}

func openPostgreSQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using PostgreSQL as database")
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openMySQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using MySQL as database")
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openSQLite() (*gorm.DB, error) {
	logger.Logger.Info("SQL_DSN not set, using SQLite as database")
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", config.SQLitePath, config.SQLiteBusyTimeout)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

// InitDB opens the configured database and migrates the account schema.
func InitDB() error {
	var err error
	DB, err = chooseDB(config.SQLDSN)
	if err != nil {
		return errors.Wrap(err, "open database")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	sqlDB.SetMaxIdleConns(config.SQLMaxIdleConns)
	sqlDB.SetMaxOpenConns(config.SQLMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Second * time.Duration(config.SQLMaxLifetimeSeconds))

	if err := DB.AutoMigrate(&Account{}); err != nil {
		return errors.Wrap(err, "migrate account schema")
	}
	return nil
}

// CloseDB flushes and closes the database handle.
func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}
