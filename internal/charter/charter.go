// Package charter holds the terms a campaign is created with. The registry validates a
// charter before dispatching creation and the campaign validates it again when it is
// instantiated.
package charter

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

// Variant selects the schema generation of a campaign.
type Variant string

const (
	// VariantCommission takes coin contributions and pays the creator net of a commission.
	VariantCommission Variant = "commission"
	// VariantTokenReward takes token contributions and mints a vested reward token on payout.
	VariantTokenReward Variant = "token_reward"
)

// ErrValidation reports malformed creation terms.
var ErrValidation = errors.New("charter: validation failed")

// RewardMessage is revealed to funders whose contribution reaches Threshold.
type RewardMessage struct {
	Threshold sdkmath.Uint `json:"threshold"`
	Message   string       `json:"message"`
}

// Fee is the commission configuration of the commission variant.
type Fee struct {
	CommissionNom     sdkmath.Uint `json:"commission_rate_nom"`
	CommissionDenom   sdkmath.Uint `json:"commission_rate_denom"`
	Upfront           sdkmath.Uint `json:"upfront"`
	CommissionAddress string       `json:"commission_addr"`
}

// Charter is the full set of creation terms.
type Charter struct {
	Registry         string
	RegistryCodeHash string
	Creator          string
	Title            string
	Subtitle         string
	Description      string
	CoverImage       string
	PledgedMessage   string
	FundedMessage    string
	RewardMessages   []RewardMessage
	Goal             sdkmath.Uint
	Deadline         uint64
	Deadman          uint64
	Categories       []uint16
	Variant          Variant
	Asset            string
	MinimumPledge    sdkmath.Uint
	MaximumPledge    sdkmath.Uint
	Fee              Fee
	Reward           *reward.Config
	Entropy          string
}

// Normalized replaces unset amounts with zero.
func (c Charter) Normalized() Charter {
	c.Goal = amount.OrZero(c.Goal)
	c.MinimumPledge = amount.OrZero(c.MinimumPledge)
	c.MaximumPledge = amount.OrZero(c.MaximumPledge)
	c.Fee.CommissionNom = amount.OrZero(c.Fee.CommissionNom)
	c.Fee.CommissionDenom = amount.OrZero(c.Fee.CommissionDenom)
	c.Fee.Upfront = amount.OrZero(c.Fee.Upfront)
	for i := range c.RewardMessages {
		c.RewardMessages[i].Threshold = amount.OrZero(c.RewardMessages[i].Threshold)
	}
	if c.Reward != nil {
		normalized := c.Reward.Normalized()
		c.Reward = &normalized
	}
	return c
}

// Validate checks the terms against the current height. It never mutates state.
func (c Charter) Validate(height uint64) error {
	c = c.Normalized()
	if strings.TrimSpace(c.Creator) == "" {
		return fmt.Errorf("%w: creator is required", ErrValidation)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if c.Goal.IsZero() {
		return fmt.Errorf("%w: goal must be greater than 0", ErrValidation)
	}
	if c.Deadline <= height {
		return fmt.Errorf("%w: cannot create campaign with deadline in the past", ErrValidation)
	}
	if strings.TrimSpace(c.Asset) == "" {
		return fmt.Errorf("%w: contribution asset is required", ErrValidation)
	}
	if !c.MaximumPledge.IsZero() && c.MaximumPledge.LT(c.MinimumPledge) {
		return fmt.Errorf("%w: maximum pledge below minimum pledge", ErrValidation)
	}
	switch c.Variant {
	case VariantCommission:
		if c.Reward != nil {
			return fmt.Errorf("%w: reward allocation requires the token reward variant", ErrValidation)
		}
		if !c.Fee.CommissionNom.IsZero() {
			if c.Fee.CommissionDenom.IsZero() {
				return fmt.Errorf("%w: commission rate denominator must be greater than 0", ErrValidation)
			}
			if strings.TrimSpace(c.Fee.CommissionAddress) == "" {
				return fmt.Errorf("%w: commission address is required", ErrValidation)
			}
		}
	case VariantTokenReward:
		if c.Reward != nil {
			if err := c.Reward.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrValidation, c.Variant)
	}
	return nil
}
