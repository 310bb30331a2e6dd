package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB wraps the delivery-journal database connection.
type DB struct {
	*sql.DB
}

// Connect opens the journal database. The pool is sized for the journal's
// write-mostly load: one short insert per pipeline run, plus the odd
// health-check ping.
func Connect(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	log.Info().Msg("Journal database connection established")

	return &DB{DB: db}, nil
}

// Close closes the journal database connection.
func (db *DB) Close() error {
	log.Info().Msg("Closing journal database connection")
	return db.DB.Close()
}

// Health pings the journal database under a short deadline.
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
