package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/troikatech/voice-ivr/pkg/auth"
)

// Prints a bcrypt hash for ADMIN_PASSWORD_HASH. The password is read from
// the first argument or, if absent, from stdin.
func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("Failed to read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < 8 {
		log.Fatal("Password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}
