// Command dbmgr applies and rolls back database migrations.
//
// usage:
//
//	dbmgr [-env <environment>] migrate
//	dbmgr [-env <environment>] rollback <version>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/db"
)

type Mode int

const (
	ModeUnknown Mode = iota
	ModeMigrate
	ModeRollback
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	var shutdown sync.WaitGroup
	defer shutdown.Wait()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	envFlag := globalFlags.String("env", envs.EnvLocal.String(), "lumen environment")
	globalFlags.Parse(os.Args[1:])
	os.Setenv("LUMEN_ENV", *envFlag)
	if globalFlags.NArg() < 1 {
		log.Fatalf("usage: %s [-env <environment>] <command> [args]", os.Args[0])
	}
	subcommand := globalFlags.Arg(0)

	var mode Mode
	var version string
	switch subcommand {
	case "migrate":
		mode = ModeMigrate

	case "rollback":
		mode = ModeRollback
		rollbackFlags := flag.NewFlagSet("rollback", flag.ExitOnError)
		rollbackFlags.Usage = func() {
			fmt.Fprintf(os.Stderr, "usage: dbmgr [-env <environment>] rollback <version>\n")
		}
		rollbackFlags.Parse(globalFlags.Args()[1:])
		if rollbackFlags.NArg() < 1 {
			rollbackFlags.Usage()
			os.Exit(1)
		}
		version = rollbackFlags.Arg(0)

	default:
		log.Fatalf("unknown command: %s", subcommand)
	}

	if _, err := secr.Setup(ctx); err != nil {
		log.Fatalf("failed to initialize secrets: %s", err)
	}
	if err := db.Setup(ctx, &shutdown); err != nil {
		log.Fatalf("failed to initialize database: %s", err)
	}

	switch mode {
	case ModeMigrate:
		if err := migrate(ctx); err != nil {
			log.Fatalf("failed to migrate database: %s", err)
		}
	case ModeRollback:
		if err := rollback(ctx, version); err != nil {
			log.Fatalf("failed to rollback database: %s", err)
		}
	}
}

func migrate(ctx context.Context) error {
	slog.Info("migrating database")
	_, err := db.D.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			name TEXT PRIMARY KEY,
			date TEXT DEFAULT (datetime('now')),
			version TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating migrations table: %w", err)
	}

	versionFolders, err := filepath.Glob("cmd/dbmgr/migrations/v*")
	if err != nil {
		return fmt.Errorf("error reading migration version folders: %w", err)
	}

	for _, versionFolder := range versionFolders {
		files, err := filepath.Glob(filepath.Join(versionFolder, "*.sql"))
		if err != nil {
			return fmt.Errorf("error reading migrations in %s: %w", versionFolder, err)
		}

		version := filepath.Base(versionFolder)
		for _, file := range files {
			if err := applyMigration(ctx, file, version); err != nil {
				return err
			}
		}
	}

	slog.Info("all migrations completed successfully")
	return nil
}

func applyMigration(ctx context.Context, file, version string) error {
	migrationName := strings.TrimSuffix(filepath.Base(file), ".sql")
	var count int
	err := db.D.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", migrationName).Scan(&count)
	if err != nil {
		return fmt.Errorf("error checking migration status: %w", err)
	}
	if count > 0 {
		slog.Debug("migration already applied, skipping", "file", migrationName)
		return nil
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading migration file %s: %w", file, err)
	}
	tx, err := db.D.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, string(contents))
	if err != nil {
		return fmt.Errorf("error applying migration %s: %w", file, err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO migrations (name, version) VALUES (?, ?)", migrationName, version)
	if err != nil {
		return fmt.Errorf("error recording migration %s: %w", file, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing migration %s: %w", file, err)
	}

	slog.Debug("migration applied successfully", "file", migrationName)
	return nil
}

func rollback(ctx context.Context, version string) error {
	slog.Info("rolling back database", "version", version)
	versionFolders, err := filepath.Glob("cmd/dbmgr/rollbacks/v*")
	if err != nil {
		return fmt.Errorf("error reading rollback version folders: %w", err)
	}
	slices.Reverse(versionFolders)

	for _, folder := range versionFolders {
		folderVersion := filepath.Base(folder)
		if folderVersion <= version {
			break // Stop rolling back once we reach the target version
		}

		files, err := filepath.Glob(filepath.Join(folder, "*.sql"))
		if err != nil {
			return fmt.Errorf("error reading rollback files in %s: %w", folder, err)
		}
		slices.Reverse(files)

		for _, file := range files {
			if err := applyRollback(ctx, file); err != nil {
				return err
			}
		}
	}
	slog.Info("database rolled back successfully")
	return nil
}

func applyRollback(ctx context.Context, file string) error {
	var tableCount int
	err := db.D.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='migrations'").Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("error checking if migrations table exists: %w", err)
	}
	if tableCount == 0 {
		return errors.New("migrations table does not exist, cannot apply rollback")
	}
	rollbackName := strings.TrimSuffix(filepath.Base(file), ".sql")
	var count int
	err = db.D.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", rollbackName).Scan(&count)
	if err != nil {
		return fmt.Errorf("error checking migration status: %w", err)
	}
	if count == 0 {
		slog.Debug("migration not applied, skipping rollback", "file", rollbackName)
		return nil
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading rollback file %s: %w", file, err)
	}
	tx, err := db.D.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, string(contents))
	if err != nil {
		return fmt.Errorf("error applying rollback %s: %w", file, err)
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM migrations WHERE name = ?", rollbackName)
	if err != nil {
		return fmt.Errorf("error removing migration record %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing rollback %s: %w", file, err)
	}

	slog.Debug("rollback applied successfully", "file", rollbackName)
	return nil
}
