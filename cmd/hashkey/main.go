// Package main is a utility for operators working with medgate credentials
// outside the running server.
//
// Two modes:
//
//	hashkey digest <api-key>    print the storage digest of an API key,
//	                            using the PEPPER environment variable
//	hashkey admin <token>       print the bcrypt hash of an internal admin
//	                            token, for MGT_AUTH_ADMIN_TOKEN_HASH
//
// Only hashes ever reach configuration or the database; this tool is how the
// corresponding raw values get turned into them.
package main

import (
	"fmt"
	"os"

	"github.com/medgate/medgate/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <digest|admin> <value>\n", os.Args[0])
		os.Exit(2)
	}

	switch os.Args[1] {
	case "digest":
		hasher, err := auth.NewHasher(os.Getenv("PEPPER"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "the PEPPER environment variable must be set")
			os.Exit(1)
		}
		fmt.Println(hasher.Hash(os.Args[2]))
	case "admin":
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), 12)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s (must be digest or admin)\n", os.Args[1])
		os.Exit(2)
	}
}
