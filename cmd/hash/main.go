// Package main is a utility for provisioning the admin token protecting the
// audit administration endpoints. The service stores only the bcrypt hash
// (auth.admin_token_hash / QMS_AUTH_ADMIN_TOKEN_HASH), never the raw token.
//
// Usage:
//
//	hash <token>   hash an existing token
//	hash           generate a random token and print both token and hash
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/meddev-qms/meddev-qms/internal/auth"
)

func main() {
	var token string
	switch len(os.Args) {
	case 1:
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
			os.Exit(1)
		}
		token = "qms_" + base64.RawURLEncoding.EncodeToString(randomBytes)
	case 2:
		token = os.Args[1]
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [token]\n", os.Args[0])
		os.Exit(1)
	}

	hash, err := auth.HashAdminToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) == 1 {
		fmt.Printf("token: %s\n", token)
		fmt.Printf("hash:  %s\n", hash)
		return
	}
	fmt.Println(hash)
}
