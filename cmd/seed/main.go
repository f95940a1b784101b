package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"bizbilling/internal/config"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/api/apiv1"
	pg "bizbilling/internal/infra/db/postgres"
	"bizbilling/internal/infra/logging"
	"bizbilling/internal/usecase"
)

const tokenTTL = 30 * 24 * time.Hour

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Database.Migrate {
		if err := pg.Migrate(cfg.Database.URL, logger); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	defs := pg.NewServiceDefinitionRepo(pool)
	users := pg.NewUserRepo(pool)

	// Saves are upserts, so re-running the seed is harmless.
	seedDefs := []model.ServiceDefinition{
		{ID: "def-hosting", Name: "Web Hosting", OneOffPrice: 5_000, RecurringPrice: 1_500, BillingCycleDays: 30},
		{ID: "def-mailbox", Name: "Business Mailbox", RecurringPrice: 300, RecurringPerUnit: true, BillingCycleDays: 30},
		{ID: "def-domain", Name: "Domain Registration", OneOffPrice: 1_200, RecurringPrice: 1_200, BillingCycleDays: 365},
	}
	for i := range seedDefs {
		d := &seedDefs[i]
		d.Currency = cfg.Payment.Currency
		d.Active = true
		if err := defs.Save(ctx, repository.NoTX, d); err != nil {
			log.Fatalf("seed definition %q: %v", d.ID, err)
		}
		fmt.Printf("definition: %s (%s) one-off=%s recurring=%s every %d days\n",
			d.ID, d.Name, model.FormatMoney(d.OneOffPrice, d.Currency), model.FormatMoney(d.RecurringPrice, d.Currency), d.BillingCycleDays)
	}

	seedUsers := []model.User{
		{ID: "user-admin", Email: "admin@example.com", FullName: "Billing Admin", Role: model.RoleAdmin},
		{ID: "user-client", Email: "client@example.com", FullName: "Sample Client", Role: model.RoleClient},
	}
	auth := apiv1.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	for i := range seedUsers {
		u := &seedUsers[i]
		if err := users.Save(ctx, repository.NoTX, u); err != nil {
			log.Fatalf("seed user %q: %v", u.ID, err)
		}
		token, err := auth.Mint(u.ID, u.Role, tokenTTL)
		if err != nil {
			log.Fatalf("mint token for %q: %v", u.ID, err)
		}
		fmt.Printf("user: %s (%s)\n  token: %s\n", u.ID, u.Role, token)
	}

	// A recurring hosting subscription for the sample client, re-provisioned
	// on every run.
	services := usecase.NewClientServiceUseCase(pg.NewClientServiceRepo(pool), defs, pg.NewTxManager(pool), logger)
	cs, err := services.Provision(ctx, model.ProvisionSpec{
		UserID:          "user-client",
		DefinitionID:    "def-hosting",
		Units:           1,
		EnableRecurring: true,
	})
	if err != nil {
		log.Fatalf("provision demo subscription: %v", err)
	}
	fmt.Printf("client service: %s status=%s\n", cs.ID, cs.Status)

	fmt.Println("Seeding complete.")
}
