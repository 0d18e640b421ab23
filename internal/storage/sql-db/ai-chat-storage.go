package sql_db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var ErrUnsupportedDriver = errors.New("unsupported sql driver")

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS chat_contexts (
			chat_id    TEXT PRIMARY KEY,
			context    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	selectContextQuery = `SELECT context FROM chat_contexts WHERE chat_id = $1`
	upsertContextQuery = `
		INSERT INTO chat_contexts (chat_id, context, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (chat_id) DO UPDATE SET context = excluded.context, updated_at = excluded.updated_at`
)

type AIChatStorage struct {
	db *sql.DB
}

// Open connects with the postgres or sqlite3 driver and creates the
// chat_contexts table when missing.
func Open(ctx context.Context, driver, dsn string) (*AIChatStorage, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer; ":memory:" databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	storage := NewAIChatStorage(db)
	if err = storage.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage, nil
}

func NewAIChatStorage(db *sql.DB) *AIChatStorage {
	return &AIChatStorage{db: db}
}

func (a *AIChatStorage) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create chat_contexts: %w", err)
	}
	return nil
}

func (a *AIChatStorage) GetConversation(ctx context.Context, chatKey string) (model.Conversation, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, selectContextQuery, chatKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conversation{}, nil
		}
		return nil, fmt.Errorf("failed to get chat %s: %w", chatKey, err)
	}
	conversation, err := model.DecodeConversation([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", chatKey, err)
	}
	return conversation, nil
}

func (a *AIChatStorage) SetConversation(ctx context.Context, chatKey string, conversation model.Conversation) error {
	data, err := model.EncodeConversation(conversation)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chatKey, err)
	}
	if _, err = a.db.ExecContext(ctx, upsertContextQuery, chatKey, string(data)); err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chatKey, err)
	}
	return nil
}

func (a *AIChatStorage) Close() error {
	return a.db.Close()
}
