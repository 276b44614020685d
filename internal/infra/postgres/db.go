package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Config holds the connection parameters for the session store.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	InitScript string
}

// DB wraps the database connection pool for the session store.
type DB struct {
	conn *sql.DB
}

// NewDB opens a connection pool to PostgreSQL, verifies it, and applies the
// bootstrap schema if an init script is configured.
func NewDB(cfg Config, logger *slog.Logger) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.DBName)

	if err := applyInitScript(conn, cfg.InitScript, logger); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Conn returns the underlying sql.DB pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// applyInitScript executes the schema bootstrap script. A missing script is
// not fatal; the schema is then expected to exist already.
func applyInitScript(conn *sql.DB, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	script, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("init script not found, skipping schema bootstrap", "path", path, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to execute init script %s: %w", path, err)
	}

	logger.Info("schema bootstrap applied", "path", path)
	return nil
}
