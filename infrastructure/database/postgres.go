package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	_ "github.com/lib/pq"

	"mpesa-checkout/infrastructure/config"
)

const (
	pingTimeout          = 5 * time.Second
	migrateRetryInterval = 5 * time.Second
)

//go:embed schema.sql
var Schema string

type schemaTarget interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewPostgres opens the pool without requiring the server to be up:
// payments keep flowing through the in-memory fallback while it is down.
// A pending migration is applied once the server first answers, until ctx ends.
func NewPostgres(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	if cfg.User == "" || cfg.Password == "" || cfg.Name == "" || cfg.Host == "" || cfg.Port == "" {
		return nil, errors.New("all database settings must be set")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable connect_timeout=5",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Second * 15)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		log.Warnw("postgres unreachable at startup, payments will use the fallback cache", "error", err)
		if cfg.Migrate {
			log.Warn("schema migration deferred until postgres is reachable")
			go func() {
				if err := migrateWhenReachable(ctx, db, migrateRetryInterval); err != nil && !errors.Is(err, context.Canceled) {
					log.Errorw("deferred schema migration failed", "error", err)
				}
			}()
		}
		return db, nil
	}
	log.Info("Connected to PostgreSQL!")

	if cfg.Migrate {
		if _, err = db.ExecContext(pingCtx, Schema); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return db, nil
}

// migrateWhenReachable pings every interval and applies Schema on the first
// successful ping.
func migrateWhenReachable(ctx context.Context, db schemaTarget, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := db.PingContext(pingCtx); err == nil {
			_, err = db.ExecContext(pingCtx, Schema)
			cancel()
			if err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			log.Info("schema applied after postgres became reachable")
			return nil
		}
		cancel()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
