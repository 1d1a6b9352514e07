// Command devtoken prints a bearer token for local testing, signed with
// JWT_SECRET.
//
//	devtoken -user u-1 -role ORGANIZER -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ticket-inventory/internal/utils"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id (sub claim)")
	role := flag.String("role", "CUSTOMER", "CUSTOMER, STAFF or ORGANIZER")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *user, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
