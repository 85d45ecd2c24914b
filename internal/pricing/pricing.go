// Package pricing splits a program price between member, sponsor, creator and platform.
//
// All amounts are integer minor units. The creator share is applied to the base
// price, never to what the member pays, so sponsorship does not change creator revenue.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid_input")

var (
	one           = decimal.NewFromInt(1)
	maxMinorUnits = decimal.NewFromInt(1 << 62)
)

// Breakdown is the full split for one purchase.
type Breakdown struct {
	BasePrice        int64 `json:"base_price"`
	SponsorAmount    int64 `json:"sponsor_amount"`
	UserPays         int64 `json:"user_pays"`
	CreatorEarning   int64 `json:"creator_earning"`
	PlatformFee      int64 `json:"platform_fee"`
	IsFree           bool  `json:"is_free"`
	IsSponsored      bool  `json:"is_sponsored"`
	IsFullySponsored bool  `json:"is_fully_sponsored"`
}

// Compute derives the breakdown. sponsorAmount above basePrice is capped at basePrice.
// CreatorEarning is basePrice*creatorShare rounded half-up; PlatformFee takes the rest.
func Compute(basePrice, sponsorAmount int64, creatorShare decimal.Decimal) (Breakdown, error) {
	if basePrice < 0 || sponsorAmount < 0 {
		return Breakdown{}, ErrInvalidInput
	}
	if creatorShare.IsNegative() || creatorShare.GreaterThan(one) {
		return Breakdown{}, ErrInvalidInput
	}

	sponsor := sponsorAmount
	if sponsor > basePrice {
		sponsor = basePrice
	}
	userPays := basePrice - sponsor

	// Round(0) rounds half away from zero, which is half-up for non-negative values.
	creatorEarning := decimal.NewFromInt(basePrice).Mul(creatorShare).Round(0).IntPart()
	platformFee := basePrice - creatorEarning

	return Breakdown{
		BasePrice:        basePrice,
		SponsorAmount:    sponsor,
		UserPays:         userPays,
		CreatorEarning:   creatorEarning,
		PlatformFee:      platformFee,
		IsFree:           basePrice == 0,
		IsSponsored:      sponsor > 0,
		IsFullySponsored: basePrice > 0 && userPays == 0,
	}, nil
}

// MinorUnits converts an externally supplied amount to int64 minor units.
// Fractional or negative values are rejected.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() || !amount.IsInteger() || amount.GreaterThan(maxMinorUnits) {
		return 0, ErrInvalidInput
	}
	return amount.IntPart(), nil
}
