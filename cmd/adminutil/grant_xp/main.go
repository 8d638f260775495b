package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/config"
	"github.com/sudo-init-do/skillswap/internal/db"
	"github.com/sudo-init-do/skillswap/internal/logger"
	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/repository"
	"github.com/sudo-init-do/skillswap/internal/user"
)

func main() {
	email := flag.String("email", "", "Email of the user to credit")
	amount := flag.Int64("amount", 0, "XP to grant, must be positive")
	reason := flag.String("reason", "", "Why the XP is granted")
	flag.Parse()

	logger.Init("info", true)
	if *email == "" || *amount <= 0 || strings.TrimSpace(*reason) == "" {
		log.Fatal().Msg("usage: go run ./cmd/adminutil/grant_xp -email user@example.com -amount 50 -reason \"workshop host\"")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	table := progression.DefaultTable()
	if len(cfg.LevelWidths) > 0 {
		if table, err = progression.NewTable(cfg.LevelWidths); err != nil {
			log.Fatal().Err(err).Msg("invalid level table")
		}
	}

	db.Init(cfg.DatabaseURL())
	defer db.Close()
	ctx := context.Background()

	u, err := user.NewPGStore(db.Conn).ByEmail(ctx, *email)
	if errors.Is(err, user.ErrNotFound) {
		log.Fatal().Str("email", *email).Msg("no user found with that email")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load user")
	}

	before, after, _, err := repository.NewXPRepo(db.Conn).Apply(ctx, progression.Award{
		UserID: u.ID,
		Amount: *amount,
		Reason: "admin grant: " + strings.TrimSpace(*reason),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to grant xp")
	}

	ch := table.Change(before, after)
	fmt.Printf("Granted %d XP to %s: %d -> %d (level %d -> %d)\n",
		*amount, u.Email, before, after, ch.Before.Level, ch.After.Level)
}
