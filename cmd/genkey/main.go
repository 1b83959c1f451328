// Command genkey mints an organizer API key and stores its bcrypt hash.
// The clear-text key is printed once and never recoverable afterwards.
//
// Usage: genkey -org <organizer-uuid> -name <label>
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/festiko/gate-backend/internal/utils"
	"github.com/google/uuid"
)

func main() {
	orgFlag := flag.String("org", "", "organizer UUID the key belongs to")
	nameFlag := flag.String("name", "back-office", "label for the key")
	flag.Parse()

	organizerID, err := uuid.Parse(*orgFlag)
	if err != nil {
		log.Fatalf("invalid -org: %v", err)
	}

	database.Connect()

	key, prefix, err := utils.GenerateAPIKey()
	if err != nil {
		log.Fatalf("key generation failed: %v", err)
	}
	hashed, err := utils.HashSecret(key)
	if err != nil {
		log.Fatalf("hashing failed: %v", err)
	}

	_, err = database.DB.Exec(`INSERT INTO organizer_api_keys (id, organizer_id, name, key_prefix, hashed_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), organizerID, *nameFlag, prefix, hashed, time.Now())
	if err != nil {
		log.Fatalf("insert failed: %v", err)
	}

	fmt.Println("Organizer API key (store it now, it will not be shown again):")
	fmt.Println(key)
}
