// Package database provides the MariaDB connection backing the submission ledger.
package database

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MariaDBConfig holds MariaDB connection configuration
type MariaDBConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Charset  string `json:"charset" yaml:"charset"`
}

// DSN renders the go-sql-driver connection string.
func (c *MariaDBConfig) DSN() string {
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	cfg := mysqldriver.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": charset}
	return cfg.FormatDSN()
}

// Validate checks the fields required to connect.
func (c *MariaDBConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Connection represents a database connection interface
type Connection interface {
	Close() error
	Ping() error
	GetStatus() string
	GetGormDB() *gorm.DB
	// SQLX shares the pool of the gorm connection for hand-written queries.
	SQLX() *sqlx.DB
}

// MariaDBConnection implements Connection for MariaDB
type MariaDBConnection struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	connected bool
}

// NewMariaDBConnection opens a MariaDB connection
func NewMariaDBConnection(config *MariaDBConfig) (*MariaDBConnection, error) {
	if config == nil {
		return nil, fmt.Errorf("MariaDB config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MariaDB config: %w", err)
	}

	db, err := gorm.Open(mysql.Open(config.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MariaDB: %w", err)
	}

	conn, err := wrap(db)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
		"username": config.Username,
	}).Info("MariaDB connection established successfully")
	return conn, nil
}

// NewFromSQL wraps an already open *sql.DB speaking the MySQL protocol.
func NewFromSQL(sqlDB *sql.DB) (*MariaDBConnection, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm on existing connection: %w", err)
	}
	return wrap(db)
}

func wrap(db *gorm.DB) (*MariaDBConnection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB: %w", err)
	}
	return &MariaDBConnection{db: db, sqlDB: sqlDB, connected: true}, nil
}

// Close closes the database connection
func (c *MariaDBConnection) Close() error {
	if !c.connected {
		return nil
	}
	if err := c.sqlDB.Close(); err != nil {
		log.WithError(err).Error("Failed to close SQL DB")
		return err
	}
	c.connected = false
	log.Info("MariaDB connection closed")
	return nil
}

// Ping tests the database connection
func (c *MariaDBConnection) Ping() error {
	if !c.connected {
		return fmt.Errorf("not connected to database")
	}
	return c.sqlDB.Ping()
}

// GetStatus returns the connection status
func (c *MariaDBConnection) GetStatus() string {
	if !c.connected {
		return "disconnected"
	}
	if err := c.Ping(); err != nil {
		return "error"
	}
	return "connected"
}

func (c *MariaDBConnection) GetGormDB() *gorm.DB {
	return c.db
}

func (c *MariaDBConnection) SQLX() *sqlx.DB {
	return sqlx.NewDb(c.sqlDB, "mysql")
}

// AutoMigrate creates or updates the ledger tables.
func (c *MariaDBConnection) AutoMigrate() error {
	log.Info("Running database auto-migration for ledger models")

	models := []interface{}{
		&Submission{},
		&SubmissionEvent{},
	}
	for _, model := range models {
		if err := c.db.AutoMigrate(model); err != nil {
			log.WithError(err).Errorf("Failed to auto-migrate table for %T", model)
			return fmt.Errorf("failed to migrate table for %T: %w", model, err)
		}
		log.Debugf("Migrated table for %T", model)
	}
	return nil
}

// MemoryConnection is used when no ledger database is configured.
type MemoryConnection struct{}

func NewMemoryConnection() *MemoryConnection {
	log.Info("No ledger database configured, submissions are not persisted")
	return &MemoryConnection{}
}

func (c *MemoryConnection) Close() error        { return nil }
func (c *MemoryConnection) Ping() error         { return nil }
func (c *MemoryConnection) GetStatus() string   { return "memory" }
func (c *MemoryConnection) GetGormDB() *gorm.DB { return nil }
func (c *MemoryConnection) SQLX() *sqlx.DB      { return nil }
