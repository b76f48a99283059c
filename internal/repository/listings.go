package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"staybook/internal/database"
	"staybook/internal/models"
)

// ListingRepository gives the booking flow read access to listings.
// Listing CRUD lives outside this service.
type ListingRepository struct {
	db *database.DB
}

func NewListingRepository(db *database.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	listing := &models.Listing{}
	query := `
		SELECT id, host_id, name, description, city, country, price_per_night,
		       created_at, updated_at
		FROM listings
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&listing.ID,
		&listing.HostID,
		&listing.Name,
		&listing.Description,
		&listing.City,
		&listing.Country,
		&listing.PricePerNight,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Create is used by the fixtures generator
func (r *ListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}

	query := `
		INSERT INTO listings (id, host_id, name, description, city, country, price_per_night)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		listing.ID,
		listing.HostID,
		listing.Name,
		listing.Description,
		listing.City,
		listing.Country,
		listing.PricePerNight,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
}
