// Command seeder populates a development database with two villages, an
// admin, a demo farmer, and a small catalog.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
	"github.com/organoz/village-market/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	db := postgres.New(pool)

	for _, t := range []model.Tenant{
		{Slug: "sundarpur", Name: "Sundarpur", AdminContact: "admin@sundarpur.example"},
		{Slug: "rampur", Name: "Rampur"},
	} {
		if _, err := db.Tenants.Create(ctx, t); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				log.Printf("tenant %s already exists", t.Slug)
				continue
			}
			log.Fatalf("seed tenant %s: %v", t.Slug, err)
		}
		log.Printf("seeded tenant %s", t.Slug)
	}

	admin := seedUser(ctx, db, model.User{
		TenantSlug: "sundarpur",
		Name:       "Village Admin",
		Phone:      "9000000000",
		Email:      "admin@sundarpur.example",
		Role:       model.RoleAdmin,
	}, envOrDefault("SEED_ADMIN_PASSWORD", "admin12345"))

	farmer := seedUser(ctx, db, model.User{
		TenantSlug: "sundarpur",
		Name:       "Asha Devi",
		Phone:      "9000000001",
		Role:       model.RoleFarmer,
		FarmProfile: model.FarmProfile{
			SoilType:   "loam",
			FarmSizeHa: 1.5,
			Crops:      []string{"tomato", "spinach"},
		},
	}, "farmer12345")

	if admin.ID == "" || farmer.ID == "" {
		log.Println("users already present, skipping catalog seed")
		return
	}

	for _, p := range []model.Product{
		{TenantSlug: "sundarpur", FarmerID: farmer.ID, Name: "Tomatoes", Category: "vegetables", PricePerUnit: 40, Unit: "kg", Stock: 25},
		{TenantSlug: "sundarpur", FarmerID: farmer.ID, Name: "Spinach", Category: "greens", PricePerUnit: 12.5, Unit: "bunch", Stock: 40},
	} {
		created, err := db.Products.Create(ctx, p)
		if err != nil {
			log.Fatalf("seed product %s: %v", p.Name, err)
		}
		log.Printf("seeded product %s (%s)", created.Name, created.ID)
	}
	log.Println("seed complete")
}

func seedUser(ctx context.Context, db *postgres.Store, u model.User, password string) model.User {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("hash password for %s: %v", u.Phone, err)
	}
	u.PasswordHash = hash
	created, err := db.Users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Printf("user %s already exists in %s", u.Phone, u.TenantSlug)
			return model.User{}
		}
		log.Fatalf("seed user %s: %v", u.Phone, err)
	}
	log.Printf("seeded %s %s (%s)", created.Role, created.Name, created.ID)
	return created
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
