package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/blastline/blastline/internal/config"
)

func main() {
	migrationsDir := flag.String("migrations", "db/migrations/postgres", "PostgreSQL migrations directory")
	migrationsSQLiteDir := flag.String("migrations-sqlite", "db/migrations/sqlite", "SQLite migrations directory")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Println("migrate: using SQLite")
		runSQLiteMigrations(ctx, cfg, *migrationsSQLiteDir)
	case "postgres":
		log.Println("migrate: using PostgreSQL")
		runPostgresMigrations(ctx, cfg, *migrationsDir)
	default:
		log.Fatalf("migrate: unknown driver: %s", cfg.Storage.Driver)
	}
}

func runSQLiteMigrations(ctx context.Context, cfg config.Config, dir string) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		log.Fatalf("migrate: could not create data dir: %v", err)
	}

	dbPath := filepath.Join(cfg.Storage.DataDir, "blastline.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Fatalf("migrate: could not open SQLite: %v", err)
	}
	defer db.Close()

	log.Printf("migrate: connected to SQLite at %s", dbPath)

	if err := ensureSchemaMigrationsSQLite(ctx, db); err != nil {
		log.Fatalf("migrate: could not prepare schema_migrations: %v", err)
	}

	if err := applySQLiteMigrations(ctx, db, dir); err != nil {
		log.Fatalf("migrate: failed to apply migrations: %v", err)
	}

	log.Println("migrate: done.")
}

func ensureSchemaMigrationsSQLite(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, dir string) error {
	files, err := listSQLFiles(dir, ".up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		log.Printf("migrate: no .up.sql files found in %s", dir)
		return nil
	}

	for _, file := range files {
		version := filepath.Base(file)
		applied, err := migrationAppliedSQLite(ctx, db, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		log.Printf("migrate: applying %s ...", version)
		sqlStmt, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", version, err)
		}

		if err := execSQLiteBatch(ctx, db, string(sqlStmt)); err != nil {
			return fmt.Errorf("exec %s: %w", version, err)
		}

		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record %s: %w", version, err)
		}

		log.Printf("migrate: %s applied.", version)
	}
	return nil
}

func migrationAppliedSQLite(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
		return false, fmt.Errorf("check %s: %w", version, err)
	}
	return count > 0, nil
}

func execSQLiteBatch(ctx context.Context, db *sql.DB, statements string) error {
	stmts := strings.Split(statements, ";")
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func runPostgresMigrations(ctx context.Context, cfg config.Config, dir string) {
	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("migrate: could not connect to database: %v", err)
	}
	defer pool.Close()

	log.Println("migrate: connected to PostgreSQL, preparing control table...")
	if err := ensureSchemaMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: could not prepare schema_migrations: %v", err)
	}

	if err := applyMigrations(ctx, pool, dir); err != nil {
		log.Fatalf("migrate: failed to apply migrations: %v", err)
	}

	log.Println("migrate: done.")
}

func ensureSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	files, err := listSQLFiles(dir, ".up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		log.Printf("migrate: no .up.sql files found in %s", dir)
		return nil
	}

	for _, file := range files {
		version := filepath.Base(file)
		applied, err := migrationApplied(ctx, pool, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		log.Printf("migrate: applying %s ...", version)
		sqlStmt, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", version, err)
		}

		if _, err := pool.Exec(ctx, string(sqlStmt)); err != nil {
			return fmt.Errorf("exec %s: %w", version, err)
		}

		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record %s: %w", version, err)
		}

		log.Printf("migrate: %s applied.", version)
	}
	return nil
}

func migrationApplied(ctx context.Context, pool *pgxpool.Pool, version string) (bool, error) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version).Scan(&count); err != nil {
		return false, fmt.Errorf("check %s: %w", version, err)
	}
	return count > 0, nil
}

func listSQLFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
