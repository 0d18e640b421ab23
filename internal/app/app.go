package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	in_memory "github.com/iamvkosarev/telegram-ai-relay/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/telegram-ai-relay/internal/storage/key-value"
	mongo_db "github.com/iamvkosarev/telegram-ai-relay/internal/storage/mongo-db"
	sql_db "github.com/iamvkosarev/telegram-ai-relay/internal/storage/sql-db"
	"github.com/iamvkosarev/telegram-ai-relay/internal/telegram"
	"github.com/iamvkosarev/telegram-ai-relay/internal/usecase"
	"github.com/iamvkosarev/telegram-ai-relay/internal/webhook"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	"github.com/redis/go-redis/v9"
)

const (
	readHeaderTimeout = 10 * time.Second
	closeTimeout      = 5 * time.Second
)

// Run serves the webhook until ctx is done, then shuts the server down and
// waits for background completions before closing storage.
func Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	bot, err := telegram.NewBot(cfg.Telegram.BotToken, log)
	if err != nil {
		return err
	}
	log.Info("authorized on account", slog.String("username", bot.Username()))

	storage, closeStorage, err := newConversationStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	conversationUsecase := usecase.NewConversationUsecase(
		usecase.ConversationUsecaseDeps{
			Storage: storage,
		}, cfg.Conversation,
	)
	if cfg.Conversation.Window > 0 && !conversationUsecase.Enabled() {
		log.Warn("context window is set but no storage backend is configured")
	}

	openAIUsecase := usecase.NewOpenAIUsecase(cfg.OpenAI, log)

	dispatchUsecase := usecase.NewDispatchUsecase(
		usecase.DispatchUsecaseDeps{
			Conversation: conversationUsecase,
			Completer:    openAIUsecase,
			Messenger:    bot,
		}, log,
	)
	defer dispatchUsecase.Wait()

	accessUsecase := usecase.NewAccessUsecase(cfg.Telegram)

	guard, err := webhook.NewGuard(cfg.Telegram, log)
	if err != nil {
		return fmt.Errorf("failed to create guard: %w", err)
	}
	handler := webhook.NewHandler(dispatchUsecase, accessUsecase, log)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           webhook.NewRouter(cfg.HTTP, guard, handler, log),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		log.Info("listening", slog.String("addr", cfg.HTTP.Addr), slog.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down server", sl.Err(err))
	}
	return nil
}

// newConversationStorage returns a nil storage for the "none" backend.
func newConversationStorage(
	ctx context.Context, cfg config.Storage, log *slog.Logger,
) (usecase.ConversationStorage, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.StorageNone, "":
		return nil, noop, nil
	case config.StorageMemory:
		return in_memory.NewAIChatStorage(), noop, nil
	case config.StorageRedis:
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("failed to ping redis %s: %w", cfg.Redis.Addr, err)
		}
		closeRedis := func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close redis", sl.Err(err))
			}
		}
		return key_value.NewAIChatStorage(rdb, cfg.Redis.ContextTTL), closeRedis, nil
	case config.StorageMongo:
		store, err := mongo_db.NewAIChatStorage(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
		if err != nil {
			return nil, noop, err
		}
		closeMongo := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Error("failed to close mongo", sl.Err(err))
			}
		}
		return store, closeMongo, nil
	case config.StorageSQL:
		store, err := sql_db.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, noop, err
		}
		closeSQL := func() {
			if err := store.Close(); err != nil {
				log.Error("failed to close sql storage", sl.Err(err))
			}
		}
		return store, closeSQL, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
