package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Register the pgx stdlib driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/inkwell-api/internal/config"
)

const (
	dbPingTimeout  = 5 * time.Second
	dbMaxOpenConns = 25
	dbMaxIdleConns = 5
	dbConnMaxIdle  = 5 * time.Minute
	dbConnMaxLife  = 30 * time.Minute
)

// openDatabase opens the PostgreSQL connection pool and verifies
// connectivity before returning it.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxIdleTime(dbConnMaxIdle)
	db.SetConnMaxLifetime(dbConnMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}
