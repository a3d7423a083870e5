package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/contentdesk/contentdesk/config"
	"github.com/contentdesk/contentdesk/pkg/store"
	"github.com/contentdesk/contentdesk/pkg/testdata"
)

// Seeds the record store with demo accounts and content requests. Requires
// record store credentials; refuses to run against production.
func main() {
	usersFlag := flag.Int("users", 10, "number of demo accounts to create")
	requestsFlag := flag.Int("requests", 5, "content requests per account")
	flag.Parse()

	cfg := config.Load()
	if cfg.APIEnvironment == "production" {
		log.Fatal("❌ Refusing to seed a production environment")
	}
	if cfg.RecordStoreToken == "" {
		log.Fatal("❌ Record store credentials are required for seeding")
	}

	client := store.NewClient(cfg.RecordStoreBaseURL, cfg.RecordStoreToken, cfg.RecordStoreBase)
	userStore := store.NewUserStore(client, cfg.UsersTable)
	contentStore := store.NewContentStore(client, cfg.ContentTable)

	genCfg := testdata.DefaultConfig()
	genCfg.Users = *usersFlag
	genCfg.RequestsPerUser = *requestsFlag

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("🌱 Seeding %d users with %d requests each...", genCfg.Users, genCfg.RequestsPerUser)

	start := time.Now()
	ids, err := testdata.SeedUsers(ctx, userStore, genCfg)
	if err != nil {
		log.Fatalf("❌ Seeding users failed: %v", err)
	}
	log.Printf("✅ Created %d users (password: %s)", len(ids), genCfg.DefaultPassword)

	created, err := testdata.SeedContent(ctx, userStore, contentStore, ids, genCfg)
	if err != nil {
		log.Fatalf("❌ Seeding content failed: %v", err)
	}
	log.Printf("✅ Created %d content requests in %s", created, time.Since(start).Round(time.Millisecond))
}
