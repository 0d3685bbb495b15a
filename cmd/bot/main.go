// Package main is the entry point for the Discord wager bot.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/bot"
	"discord-wager-bot/internal/config"
	"discord-wager-bot/internal/game/blackjack"
	"discord-wager-bot/internal/game/cards"
	"discord-wager-bot/internal/game/coinflip"
	"discord-wager-bot/internal/game/crash"
	"discord-wager-bot/internal/handler"
	"discord-wager-bot/internal/pkg/db"
	"discord-wager-bot/internal/registry"
	"discord-wager-bot/internal/repository"
	"discord-wager-bot/internal/service"
	"discord-wager-bot/internal/session"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories and the ledger service
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	ledger := service.NewLedgerService(accountRepo, txRepo)

	// Shared game state
	claims := registry.NewActiveGames()
	sessions := session.NewRegistry()

	// The launchers and the bot draw through the same Discord session.
	discordSession, err := bot.NewSession(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create discord session")
	}
	renderer := bot.NewRenderer(discordSession)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	blackjackLauncher := &blackjack.Launcher{
		Ledger:   ledger,
		Claims:   claims,
		Sessions: sessions,
		Renderer: renderer,
		Dealer:   cards.NewRandomDealer(rng),
		Timeout:  cfg.Games.Blackjack.Timeout,
	}
	coinflipLauncher := &coinflip.Launcher{
		Ledger:         ledger,
		Claims:         claims,
		Sessions:       sessions,
		Renderer:       renderer,
		ResponseWindow: cfg.Games.Coinflip.ResponseWindow,
	}
	crashManager := crash.NewManager(ledger, claims, sessions, renderer, crash.Config{
		JoinWindow:      cfg.Games.Crash.JoinWindow,
		TickInterval:    cfg.Games.Crash.TickInterval,
		StartMultiplier: cfg.Games.Crash.StartMultiplier,
		GrowthFactor:    cfg.Games.Crash.GrowthFactor,
		SessionTimeout:  cfg.Games.Crash.SessionTimeout,
	})

	discordBot := bot.New(discordSession, &bot.Dependencies{
		Config:         cfg,
		Sessions:       sessions,
		AccountHandler: handler.NewAccountHandler(ledger, cfg),
		GameHandler:    handler.NewGameHandler(blackjackLauncher, coinflipLauncher, crashManager),
	})

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Bot is starting...")
	if err := discordBot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot")
	}

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	discordBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id VARCHAR(64) PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
