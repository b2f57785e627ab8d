package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/config"
	"github.com/AbdulWasayUl/go-weather-etl/internal/db/migrations"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const migrationTable = "schema_migrations"

// DB is a connection pool plus the dialect it speaks. It is created once by
// the caller and passed to whatever needs the store.
type DB struct {
	*sql.DB
	Dialect string
}

// Open connects to the database selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN())
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

func OpenMySQL(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	logger.Info("Successfully connected to MySQL!")
	return &DB{DB: conn, Dialect: migrations.MySQL}, nil
}

// OpenSQLite opens (creating if needed) the database file at path. Write
// transactions take the lock when they begin so busy_timeout applies to them.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	logger.Info("Opened SQLite database at %s", path)
	return &DB{DB: conn, Dialect: migrations.SQLite}, nil
}

func ping(ctx context.Context, conn *sql.DB) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctxTimeout); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (d *DB) Close() error {
	if err := d.DB.Close(); err != nil {
		return err
	}
	logger.Info("Closed %s database.", d.Dialect)
	return nil
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, in order.
func RunMigrations(ctx context.Context, d *DB) error {
	create := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	name       VARCHAR(128) NOT NULL PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL
)`
	if _, err := d.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", migrationTable, err)
	}

	for _, m := range migrations.For(d.Dialect) {
		var name string
		err := d.QueryRowContext(ctx, `SELECT name FROM `+migrationTable+` WHERE name = ?`, m.Name).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			logger.Info("Running migration: %s", m.Name)
			if err := apply(ctx, d, m.Name, m.Statements); err != nil {
				logger.Error("Error applying migration %s: %v", m.Name, err)
				return err
			}
			logger.Info("Migration %s applied successfully.", m.Name)
		case err != nil:
			return err
		default:
			logger.Debug("Migration %s already applied, skipping.", m.Name)
		}
	}
	return nil
}

// apply runs one migration in a transaction. MySQL commits DDL implicitly,
// which is why every statement is written to be re-runnable.
func apply(ctx context.Context, d *DB, name string, statements []string) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// Applied lists recorded migration names in order of application.
func Applied(ctx context.Context, d *DB) ([]string, error) {
	rows, err := d.QueryContext(ctx, `SELECT name FROM `+migrationTable+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
