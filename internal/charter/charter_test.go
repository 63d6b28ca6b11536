package charter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

func validCharter() Charter {
	return Charter{
		Creator:  "creator",
		Title:    "Campaign",
		Goal:     amount.New(1000),
		Deadline: 100,
		Deadman:  50,
		Variant:  VariantCommission,
		Asset:    "uscrt",
		Fee: Fee{
			CommissionNom:     amount.New(1),
			CommissionDenom:   amount.New(10),
			Upfront:           amount.New(50),
			CommissionAddress: "platform",
		},
	}
}

func TestValidateAcceptsWellFormedCharter(t *testing.T) {
	require.NoError(t, validCharter().Validate(10))
}

func TestValidateRejectsMalformedTerms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Charter)
	}{
		{name: "zero goal", mutate: func(c *Charter) { c.Goal = amount.Zero() }},
		{name: "past deadline", mutate: func(c *Charter) { c.Deadline = 5 }},
		{name: "deadline now", mutate: func(c *Charter) { c.Deadline = 10 }},
		{name: "missing creator", mutate: func(c *Charter) { c.Creator = " " }},
		{name: "zero commission denominator", mutate: func(c *Charter) { c.Fee.CommissionDenom = amount.Zero() }},
		{name: "unknown variant", mutate: func(c *Charter) { c.Variant = "barter" }},
		{name: "pledge bounds inverted", mutate: func(c *Charter) {
			c.MinimumPledge = amount.New(10)
			c.MaximumPledge = amount.New(5)
		}},
		{name: "reward on commission variant", mutate: func(c *Charter) {
			c.Reward = &reward.Config{Token: reward.TokenParams{Name: "R", Symbol: "R"}, Weight: reward.WeightLinear}
		}},
		{name: "bad vesting schedule", mutate: func(c *Charter) {
			c.Variant = VariantTokenReward
			c.Reward = &reward.Config{
				Token:                reward.TokenParams{Name: "R", Symbol: "R"},
				Weight:               reward.WeightLinear,
				ContributorsSchedule: reward.Schedule{{Height: 1, PerMille: 500}},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCharter()
			tt.mutate(&c)
			require.ErrorIs(t, c.Validate(10), ErrValidation)
		})
	}
}
