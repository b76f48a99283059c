package service

import (
	"context"

	"github.com/shopspring/decimal"

	"staybook/internal/models"
)

// PriceQuoter prices a stay at a listing
type PriceQuoter interface {
	Quote(ctx context.Context, listing *models.Listing, checkIn, checkOut models.Date) (decimal.Decimal, error)
}

// NightlyRateQuoter charges the listing's nightly rate for every night
type NightlyRateQuoter struct{}

func (NightlyRateQuoter) Quote(_ context.Context, listing *models.Listing, checkIn, checkOut models.Date) (decimal.Decimal, error) {
	nights := checkOut.DaysSince(checkIn)
	return listing.PricePerNight.Mul(decimal.NewFromInt(int64(nights))).Round(2), nil
}
