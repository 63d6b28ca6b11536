// Package reward turns a reward-token allocation into per-beneficiary, per-milestone
// claimable amounts and tracks which milestones were claimed.
package reward

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
)

// Weight selects how a contribution is weighted before computing its share.
type Weight uint8

const (
	// WeightLinear weights contributions proportionally.
	WeightLinear Weight = 1
	// WeightSqrt is reserved; its curve is not defined.
	WeightSqrt Weight = 2
	// WeightLog is reserved; its curve is not defined.
	WeightLog Weight = 3
)

var (
	// ErrInvalidSchedule reports a vesting schedule whose per-mille entries do not sum to 1000.
	ErrInvalidSchedule = errors.New("reward: vesting per mille must sum to 1000")
	// ErrUnsupportedWeight reports a contribution weight other than linear.
	ErrUnsupportedWeight = errors.New("reward: contribution weight not implemented")
	// ErrInvalidToken reports missing token parameters.
	ErrInvalidToken = errors.New("reward: invalid token parameters")
	// ErrMilestoneOutOfRange reports a milestone index beyond the schedule.
	ErrMilestoneOutOfRange = errors.New("reward: milestone out of range")
	// ErrAlreadyClaimed reports a milestone that was claimed before.
	ErrAlreadyClaimed = errors.New("reward: milestone already claimed")
	// ErrNotVested reports a milestone whose height has not been reached.
	ErrNotVested = errors.New("reward: milestone not vested yet")
	// ErrNothingToClaim reports a beneficiary without a reward share.
	ErrNothingToClaim = errors.New("reward: no reward for beneficiary")
)

// VestingEvent unlocks PerMille of a share at Height.
type VestingEvent struct {
	Height   uint64 `json:"block"`
	PerMille uint16 `json:"per_mille"`
}

// Schedule is an ordered list of vesting events.
type Schedule []VestingEvent

// Validate checks that the schedule is empty or sums to exactly 1000 per mille.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return nil
	}
	var sum uint32
	for _, event := range s {
		sum += uint32(event.PerMille)
	}
	if sum != amount.PerMilleBase {
		return fmt.Errorf("%w: got %d", ErrInvalidSchedule, sum)
	}
	return nil
}

// Slots is the number of claimable milestones; an empty schedule has a single slot at height 0.
func (s Schedule) Slots() int {
	if len(s) == 0 {
		return 1
	}
	return len(s)
}

// TokenParams describes the reward token to issue.
type TokenParams struct {
	CodeID            uint64 `json:"code_id"`
	CodeHash          string `json:"code_hash"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Decimals          uint8  `json:"decimals"`
	Admin             string `json:"admin,omitempty"`
	PublicTotalSupply bool   `json:"public_total_supply"`
	EnableDeposit     bool   `json:"enable_deposit"`
	EnableRedeem      bool   `json:"enable_redeem"`
	EnableMint        bool   `json:"enable_mint"`
	EnableBurn        bool   `json:"enable_burn"`
}

// Config is the immutable reward allocation chosen at campaign creation.
type Config struct {
	Token                TokenParams  `json:"token"`
	Amount               sdkmath.Uint `json:"amount"`
	ContributorsPerMille uint16       `json:"contributors_per_mille"`
	CreatorPerMille      uint16       `json:"creator_per_mille"`
	MinimumContribution  sdkmath.Uint `json:"minimum_contribution"`
	MaximumContribution  sdkmath.Uint `json:"maximum_contribution"`
	Weight               Weight       `json:"contribution_weight"`
	ContributorsSchedule Schedule     `json:"contributors_vesting_schedule"`
	CreatorSchedule      Schedule     `json:"creator_vesting_schedule"`
	CreatorAddresses     []string     `json:"creator_addresses,omitempty"`
}

// Validate checks schedules, weight and token parameters. The combined per-mille of
// contributors and creator is not bounded.
func (c Config) Validate() error {
	if err := c.ContributorsSchedule.Validate(); err != nil {
		return fmt.Errorf("contributors schedule: %w", err)
	}
	if err := c.CreatorSchedule.Validate(); err != nil {
		return fmt.Errorf("creator schedule: %w", err)
	}
	if c.Weight != WeightLinear {
		return fmt.Errorf("%w: %d", ErrUnsupportedWeight, c.Weight)
	}
	if strings.TrimSpace(c.Token.Name) == "" || strings.TrimSpace(c.Token.Symbol) == "" {
		return fmt.Errorf("%w: name and symbol are required", ErrInvalidToken)
	}
	for _, address := range c.CreatorAddresses {
		if strings.TrimSpace(address) == "" {
			return fmt.Errorf("%w: empty creator address", ErrInvalidToken)
		}
	}
	return nil
}

// Normalized fills zero values left by decoding.
func (c Config) Normalized() Config {
	c.Amount = amount.OrZero(c.Amount)
	c.MinimumContribution = amount.OrZero(c.MinimumContribution)
	c.MaximumContribution = amount.OrZero(c.MaximumContribution)
	return c
}

// Milestone is the amount claimable once Height is reached.
type Milestone struct {
	Height uint64
	Amount sdkmath.Uint
}

// ContributorShare returns a contributor's total reward. ok is false when the
// contribution is below the eligibility minimum.
func ContributorShare(cfg Config, contribution, totalRaised sdkmath.Uint) (sdkmath.Uint, bool, error) {
	cfg = cfg.Normalized()
	if contribution.LT(cfg.MinimumContribution) {
		return amount.Zero(), false, nil
	}
	valid := contribution
	if !cfg.MaximumContribution.IsZero() {
		valid = amount.Min(contribution, cfg.MaximumContribution)
	}
	pool, err := amount.PerMille(cfg.Amount, cfg.ContributorsPerMille)
	if err != nil {
		return amount.Zero(), false, err
	}
	share, err := amount.MulDiv(pool, valid, totalRaised)
	if err != nil {
		return amount.Zero(), false, err
	}
	return share, true, nil
}

// CreatorShare returns the whole creator allocation.
func CreatorShare(cfg Config) (sdkmath.Uint, error) {
	cfg = cfg.Normalized()
	return amount.PerMille(cfg.Amount, cfg.CreatorPerMille)
}

// CreatorBeneficiaries lists the identities sharing the creator allocation.
func CreatorBeneficiaries(cfg Config, creator string) []string {
	if len(cfg.CreatorAddresses) == 0 {
		return []string{creator}
	}
	return append([]string(nil), cfg.CreatorAddresses...)
}

// CreatorShareOf returns the creator allocation owed to one beneficiary; the allocation is
// split evenly and the floor remainder stays with the campaign.
func CreatorShareOf(cfg Config, creator, beneficiary string) (sdkmath.Uint, bool, error) {
	beneficiaries := CreatorBeneficiaries(cfg, creator)
	found := false
	for _, candidate := range beneficiaries {
		if candidate == beneficiary {
			found = true
			break
		}
	}
	if !found {
		return amount.Zero(), false, nil
	}
	total, err := CreatorShare(cfg)
	if err != nil {
		return amount.Zero(), false, err
	}
	share, err := amount.MulDiv(total, amount.New(1), amount.New(uint64(len(beneficiaries))))
	if err != nil {
		return amount.Zero(), false, err
	}
	return share, true, nil
}

// Split spreads a share across a schedule.
func Split(share sdkmath.Uint, schedule Schedule) ([]Milestone, error) {
	if len(schedule) == 0 {
		return []Milestone{{Height: 0, Amount: share}}, nil
	}
	milestones := make([]Milestone, 0, len(schedule))
	for _, event := range schedule {
		portion, err := amount.PerMille(share, event.PerMille)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, Milestone{Height: event.Height, Amount: portion})
	}
	return milestones, nil
}

// ContributorMilestones combines ContributorShare and Split. An ineligible contributor gets
// no milestones and no error.
func ContributorMilestones(cfg Config, contribution, totalRaised sdkmath.Uint) ([]Milestone, error) {
	share, ok, err := ContributorShare(cfg, contribution, totalRaised)
	if err != nil || !ok {
		return nil, err
	}
	return Split(share, cfg.ContributorsSchedule)
}

// CreatorMilestones combines CreatorShareOf and Split.
func CreatorMilestones(cfg Config, creator, beneficiary string) ([]Milestone, error) {
	share, ok, err := CreatorShareOf(cfg, creator, beneficiary)
	if err != nil || !ok {
		return nil, err
	}
	return Split(share, cfg.CreatorSchedule)
}

// Claim validates a claim of milestone index at height and returns the amount and the
// updated claim vector. The input vector is not modified.
func Claim(milestones []Milestone, claims Claims, index int, height uint64) (sdkmath.Uint, Claims, error) {
	if len(milestones) == 0 {
		return amount.Zero(), claims, ErrNothingToClaim
	}
	if index < 0 || index >= len(milestones) {
		return amount.Zero(), claims, fmt.Errorf("%w: %d", ErrMilestoneOutOfRange, index)
	}
	if claims.Claimed(index) {
		return amount.Zero(), claims, fmt.Errorf("%w: %d", ErrAlreadyClaimed, index)
	}
	milestone := milestones[index]
	if height < milestone.Height {
		return amount.Zero(), claims, fmt.Errorf("%w: milestone %d unlocks at %d", ErrNotVested, index, milestone.Height)
	}
	updated := claims.Resized(len(milestones))
	updated[index] = true
	return milestone.Amount, updated, nil
}
