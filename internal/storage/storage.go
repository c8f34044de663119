// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a registration is absent or not owned by the caller.
// Both cases are reported identically.
var ErrNotFound = errors.New("webhook registration not found")

type Storage struct {
	DB     *sql.DB
	driver string
	now    func() time.Time
	logger *slog.Logger
}

// NewStorage opens and pings the database, then applies the schema.
func NewStorage(driver, dsn string, logger *slog.Logger) (*Storage, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection also keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	s := &Storage{
		DB:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "storage"),
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Driver() string {
	return s.driver
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
