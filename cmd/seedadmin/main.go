// Command seedadmin provisions one administrative account. The password is
// read from JOBDESK_SEED_PASSWORD so it never appears in shell history.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobdesk.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("JOBDESK_PG_DSN"), "PostgreSQL DSN")
		username = flag.String("username", "", "admin username (lowercased)")
		emailArg = flag.String("email", "", "admin email")
		roleArg  = flag.String("role", string(auth.RoleAdmin), "role: super_admin, admin, or moderator")
		inactive = flag.Bool("inactive", false, "create the account deactivated")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or JOBDESK_PG_DSN")
	}
	if *username == "" || *emailArg == "" {
		log.Fatal("username and email are required")
	}
	password := os.Getenv("JOBDESK_SEED_PASSWORD")
	if password == "" {
		log.Fatal("JOBDESK_SEED_PASSWORD is required")
	}

	role, err := auth.ParseRole(*roleArg)
	if err != nil {
		log.Fatalf("role: %v", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGIdentityStore(db)
	identity := &auth.Identity{
		Username:     *username,
		PasswordHash: hash,
		Email:        *emailArg,
		Role:         role,
		Active:       !*inactive,
	}
	if err := store.CreateOrUpdate(ctx, identity); err != nil {
		log.Fatalf("provision admin: %v", err)
	}
	log.Printf("admin %q provisioned with role %s", auth.NormalizeUsername(*username), role)
}
