package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/config"
	"github.com/sudo-init-do/skillswap/internal/db"
	"github.com/sudo-init-do/skillswap/internal/logger"
	"github.com/sudo-init-do/skillswap/internal/user"
)

func main() {
	email := flag.String("email", "", "Email of the user to promote to admin")
	flag.Parse()

	logger.Init("info", true)
	if *email == "" {
		log.Fatal().Msg("usage: go run ./cmd/adminutil/promote_admin -email user@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize DB; db.Init also makes sure the role column exists
	db.Init(cfg.DatabaseURL())
	defer db.Close()

	err = user.NewPGStore(db.Conn).SetRole(context.Background(), *email, user.RoleAdmin)
	if errors.Is(err, user.ErrNotFound) {
		log.Fatal().Str("email", *email).Msg("no user found with that email")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to promote user to admin")
	}

	fmt.Printf("User %s promoted to admin.\n", *email)
}
