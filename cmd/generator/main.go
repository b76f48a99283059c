package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"staybook/internal/cache"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/models"
	"staybook/internal/repository"
)

var (
	guestCount   = flag.Int("guests", 20, "Number of guest accounts to create")
	hostCount    = flag.Int("hosts", 5, "Number of host accounts to create")
	listingCount = flag.Int("listings", 3, "Number of listings to create per host")
	password     = flag.String("password", "password123", "Password for every generated account")
	warmCache    = flag.Bool("warm-cache", false, "Store generated credentials in the Redis auth cache")
	dryRun       = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

var cities = []struct{ city, country string }{
	{"Addis Ababa", "Ethiopia"},
	{"Bahir Dar", "Ethiopia"},
	{"Nairobi", "Kenya"},
	{"Mombasa", "Kenya"},
	{"Zanzibar", "Tanzania"},
}

var kinds = []string{"Cabin", "Loft", "Villa", "Studio", "Guesthouse"}

type Generator struct {
	repos *repository.Repositories
	cache *cache.Client
	rng   *rand.Rand
}

func main() {
	flag.Parse()

	slog.Info("Starting fixtures generator...")

	if *dryRun {
		slog.Info("[DRY RUN] Would generate fixtures",
			"guests", *guestCount, "hosts", *hostCount, "listings", (*hostCount)*(*listingCount))
		return
	}

	cfg := config.Load()
	db, err := database.Connect(cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	generator := &Generator{
		repos: repository.NewRepositories(db),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if *warmCache {
		redisClient, err := cache.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, skipping cache warm-up", "error", err)
		} else {
			defer redisClient.Close()
			generator.cache = redisClient
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := generator.Generate(ctx); err != nil {
		slog.Error("Failed to generate fixtures", "error", err)
		os.Exit(1)
	}

	slog.Info("Fixture generation completed successfully!")
}

func (g *Generator) Generate(ctx context.Context) error {
	passwordHash := hashPassword(*password)

	for i := 1; i <= *guestCount; i++ {
		if _, err := g.createUser(ctx, fmt.Sprintf("guest%d@example.com", i), "Guest", fmt.Sprint(i), passwordHash); err != nil {
			return fmt.Errorf("failed to create guest: %w", err)
		}
	}
	slog.Info("Generated guests", "count", *guestCount)

	listings := 0
	for i := 1; i <= *hostCount; i++ {
		host, err := g.createUser(ctx, fmt.Sprintf("host%d@example.com", i), "Host", fmt.Sprint(i), passwordHash)
		if err != nil {
			return fmt.Errorf("failed to create host: %w", err)
		}

		for j := 0; j < *listingCount; j++ {
			listing := g.newListing(host.UserID)
			if err := g.repos.Listings.Create(ctx, listing); err != nil {
				return fmt.Errorf("failed to create listing for host %d: %w", host.UserID, err)
			}
			listings++
		}
	}
	slog.Info("Generated hosts and listings", "hosts", *hostCount, "listings", listings)

	return nil
}

func (g *Generator) createUser(ctx context.Context, email, firstName, surname, passwordHash string) (*models.User, error) {
	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		Surname:      surname,
		IsActive:     true,
	}
	if err := g.repos.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.SetUserAuth(ctx, email, passwordHash, user.UserID); err != nil {
			slog.Warn("Failed to cache credentials", "email", email, "error", err)
		}
	}

	return user, nil
}

func (g *Generator) newListing(hostID int64) *models.Listing {
	place := cities[g.rng.Intn(len(cities))]
	kind := kinds[g.rng.Intn(len(kinds))]

	// 40.00 to 400.00 per night
	price := decimal.New(int64(g.rng.Intn(36001)+4000), -2)

	return &models.Listing{
		HostID:        hostID,
		Name:          fmt.Sprintf("%s in %s", kind, place.city),
		Description:   fmt.Sprintf("A comfortable %s close to the center of %s.", kind, place.city),
		City:          place.city,
		Country:       place.country,
		PricePerNight: price,
	}
}

// hashPassword matches the SHA-256 hex digest the API compares against
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
