package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/dsavault/clubchat/internal/crypto"
)

func main() {
	size := flag.Int("bytes", 48, "Secret length in bytes")
	flag.Parse()

	if *size < crypto.MinSecretLen {
		fmt.Fprintf(os.Stderr, "secret must be at least %d bytes\n", crypto.MinSecretLen)
		os.Exit(1)
	}

	secret := make([]byte, *size)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	fmt.Printf("JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
}
