package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dsavault/clubchat/internal/config"
	"github.com/dsavault/clubchat/internal/crypto"
	"github.com/dsavault/clubchat/internal/models"
)

func main() {
	userID := flag.String("user", "", "User id (token subject)")
	email := flag.String("email", "", "User email")
	name := flag.String("name", "", "Display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -user <id> [-email <email>] [-name <display name>] [-ttl 24h]")
		fmt.Fprintln(os.Stderr, "  Signs with JWT_SECRET and JWT_ISSUER from the environment or .env")
		os.Exit(1)
	}

	cfg := config.Load()
	tokens, err := crypto.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid secret: %v\n", err)
		os.Exit(1)
	}

	token, err := tokens.Issue(models.User{ID: *userID, Email: *email, DisplayName: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
}
