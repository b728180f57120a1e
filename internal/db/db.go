package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chat-engine/internal/config"
	"chat-engine/internal/logging"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_rooms (
            id BIGSERIAL PRIMARY KEY,
            type VARCHAR(16) NOT NULL,
            name TEXT,
            private_key VARCHAR(64),
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chat_rooms_private_key_live
            ON chat_rooms (private_key) WHERE is_deleted = FALSE;`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
            room_id BIGINT NOT NULL REFERENCES chat_rooms(id),
            member_id BIGINT NOT NULL,
            last_read_message_id BIGINT,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, member_id)
        );`,
	`CREATE INDEX IF NOT EXISTS chat_participants_member ON chat_participants (member_id);`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES chat_rooms(id),
            sender_id BIGINT,
            content TEXT NOT NULL,
            type VARCHAR(16) NOT NULL,
            client_message_id VARCHAR(64) UNIQUE,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            version BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_created ON chat_messages (room_id, created_at);`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logging.L().Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
