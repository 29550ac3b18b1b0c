package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// Connect opens a pooled postgres connection and verifies it with a ping
func Connect(config shared.DatabaseConfig) (*sql.DB, error) {
	if config.URL == "" {
		return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, "DATABASE_URL_MISSING",
			"database URL is empty", "database", "Connect", false, nil)
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "DATABASE_OPEN_FAILED", "database", "Connect", false)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "DATABASE_PING_FAILED", "database", "Connect", true)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":     config.MaxOpenConns,
		"max_idle_conns":     config.MaxIdleConns,
		"conn_max_lifetime":  config.ConnMaxLifetime,
		"conn_max_idle_time": config.ConnMaxIdleTime,
	}).Info("Connected to database successfully")

	return db, nil
}

func Close(db *sql.DB) {
	if db != nil {
		db.Close()
		logrus.Info("Database connection closed")
	}
}

// HealthCheck pings the pool and logs its statistics
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection not established")
	}

	if err := db.PingContext(ctx); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, "DATABASE_PING_FAILED", "database", "HealthCheck", true)
	}

	stats := db.Stats()
	logrus.WithFields(logrus.Fields{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}).Debug("Database connection pool health check")

	return nil
}

// Migrate creates the response cache table and its index
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection not established")
	}

	for _, stmt := range ParseSQLStatements(schemaSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// ParseSQLStatements splits a script into statements on trailing semicolons.
// Comment-only lines are skipped.
func ParseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(strings.TrimSuffix(currentStatement.String(), ";")); stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	if stmt := strings.TrimSpace(currentStatement.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}
