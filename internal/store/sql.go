package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// SQLStore keeps each collection as one row of record_collections. Update runs
// in a transaction; on PostgreSQL the row is locked with SELECT ... FOR UPDATE.
type SQLStore struct {
	DB     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{DB: db, driver: driver}
}

func ConnectDB(driver, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection keeps transactions
		// from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func RunMigrations(db *sql.DB, migrations fs.FS, logger *logrus.Logger) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		logger.Println("No migration files found.")
		return nil
	}

	for _, name := range names {
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		logger.Printf("Applied migration: %s", name)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *SQLStore) ReadAll(ctx context.Context, collection string) ([]byte, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM record_collections WHERE name = $1`, collection).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return emptyCollection, nil
		}
		return nil, errors.Wrapf(err, "read collection %s", collection)
	}
	return []byte(data), nil
}

func (s *SQLStore) WriteAll(ctx context.Context, collection string, data []byte) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO record_collections (name, data, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, string(data), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "write collection %s", collection)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, collection string, fn func([]byte) ([]byte, error)) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO record_collections (name, data, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO NOTHING`,
		collection, string(emptyCollection), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "initialise collection %s", collection)
	}

	query := `SELECT data FROM record_collections WHERE name = $1`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var current string
	if err := tx.QueryRowContext(ctx, query, collection).Scan(&current); err != nil {
		return errors.Wrapf(err, "lock collection %s", collection)
	}

	next, err := fn([]byte(current))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE record_collections SET data = $1, updated_at = $2 WHERE name = $3`,
		string(next), time.Now().UTC(), collection)
	if err != nil {
		return errors.Wrapf(err, "update collection %s", collection)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
