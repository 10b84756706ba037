package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"carebook/internal/catalog"
	"carebook/internal/database"
	"carebook/internal/domain"
	"carebook/internal/ledger"
	"carebook/internal/models"
	"carebook/internal/repository"
	"carebook/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "", "optional path to catalog.yaml to seed missing users")
		dbPath      = flag.String("db", "./data/carebook.db", "path to sqlite db")
	)
	flag.Parse()

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	normalized, err := repository.NormalizeUsers(ctx, db, &logger)
	if err != nil {
		return err
	}

	seeded := 0
	if *catalogPath != "" {
		users, err := catalog.Load(*catalogPath)
		if err != nil {
			return err
		}
		if seeded, err = service.NewUserService(db, &logger).SeedUsers(ctx, users); err != nil {
			return err
		}
	}

	users, err := repository.NewCollection[models.User](db, models.CollectionUsers).List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	led := ledger.NewService(db, nil, &logger)
	mismatched := 0
	for _, u := range users {
		err := led.Reconcile(ctx, u.ID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrLedgerMismatch):
			mismatched++
			logger.Warn().Err(err).Str("user_id", u.ID).Msg("wallet does not match its log")
		default:
			return fmt.Errorf("reconcile %s: %w", u.ID, err)
		}
	}

	fmt.Printf("done: normalized=%d seeded=%d checked=%d mismatched=%d\n", normalized, seeded, len(users), mismatched)
	if mismatched > 0 {
		return fmt.Errorf("%d wallets need attention", mismatched)
	}
	return nil
}
