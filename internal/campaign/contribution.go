package campaign

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

func (s *Service) contribute(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command Contribute) (hostenv.Result, error) {
	if env.Funds == nil || amount.OrZero(env.Funds.Amount).IsZero() {
		return hostenv.Failure("No funds sent"), nil
	}
	funds := *env.Funds
	giveBack := func(message string) (hostenv.Result, error) {
		return hostenv.Failure(message, transferOut(*campaign, env.Sender, funds)), nil
	}

	if funds.Asset != campaign.Asset {
		return giveBack("Wrong contribution asset")
	}
	if env.Sender == campaign.Creator {
		return giveBack("Creator cannot contribute to own campaign")
	}
	if reason := contributionRefusal(*campaign); reason != "" {
		return giveBack(reason)
	}
	if funds.Amount.LT(campaign.MinimumPledge) {
		return giveBack(fmt.Sprintf("Contribution below minimum pledge of %s", campaign.MinimumPledge))
	}

	funder, created, err := s.loadOrNewFunder(store, campaign, env.Sender)
	if err != nil {
		return hostenv.Result{}, err
	}
	balance, err := amount.Add(funder.Amount, funds.Amount)
	if err != nil {
		return hostenv.Result{}, newServiceError(opContribute, "balance_overflow", err)
	}
	if !campaign.MaximumPledge.IsZero() && balance.GT(campaign.MaximumPledge) {
		return giveBack(fmt.Sprintf("Contribution exceeds maximum pledge of %s", campaign.MaximumPledge))
	}

	if err := addContribution(campaign, &funder, funds.Amount, command.Anonymous); err != nil {
		return hostenv.Result{}, newServiceError(opContribute, "total_overflow", err)
	}
	if created {
		campaign.FunderCount++
	}
	if err := store.SaveFunder(&funder); err != nil {
		s.logError(opContribute, "funder_save_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opContribute, "funder_save_failed", err)
	}
	if err := s.save(opContribute, store, campaign); err != nil {
		return hostenv.Result{}, err
	}

	result := hostenv.Success(fmt.Sprintf("Successfully contributed %s %s", funds.Amount, funds.Asset))
	if _, err := store.LoadViewingKey(campaign.Address, env.Sender); errors.Is(err, ledger.ErrNotFound) {
		key, err := s.issueViewingKey(store, campaign.Address, env.Sender, command.Entropy)
		if err != nil {
			return hostenv.Result{}, newServiceError(opContribute, "viewing_key_failed", err)
		}
		result = result.WithData("key", key)
	} else if err != nil {
		return hostenv.Result{}, newServiceError(opContribute, "viewing_key_load_failed", err)
	}
	return result, nil
}

func (s *Service) loadOrNewFunder(store *ledger.Store, campaign *ledger.Campaign, address string) (ledger.Funder, bool, error) {
	funder, err := store.LoadFunder(campaign.Address, address)
	if err == nil {
		return funder, false, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		s.logError(opContribute, "funder_load_failed", err, zap.String("campaign", campaign.Address))
		return ledger.Funder{}, false, newServiceError(opContribute, "funder_load_failed", err)
	}
	return ledger.Funder{
		CampaignAddress: campaign.Address,
		Address:         address,
		Idx:             campaign.FunderCount,
		Amount:          amount.Zero(),
		RewardClaimed:   reward.NewClaims(claimSlots(*campaign)).String(),
	}, true, nil
}

// claimSlots sizes a fresh contributor bit-vector: one bit per contributor milestone and
// at least one bit.
func claimSlots(campaign ledger.Campaign) int {
	if campaign.Reward == nil || len(campaign.Reward.ContributorsSchedule) == 0 {
		return 1
	}
	return len(campaign.Reward.ContributorsSchedule)
}

// addContribution credits value to funder and campaign and applies the success transition.
func addContribution(campaign *ledger.Campaign, funder *ledger.Funder, value sdkmath.Uint, anonymous bool) error {
	balance, err := amount.Add(funder.Amount, value)
	if err != nil {
		return err
	}
	total, err := amount.Add(campaign.Total, value)
	if err != nil {
		return err
	}
	funder.Amount = balance
	funder.Anonymous = anonymous
	campaign.Total = total
	if campaign.Status == ledger.StatusFundraising && campaign.Total.GTE(campaign.Goal) {
		campaign.Status = ledger.StatusSuccessful
	}
	return nil
}

// clearContribution zeroes the funder balance, hides the funder and returns the amount.
func clearContribution(campaign *ledger.Campaign, funder *ledger.Funder) (sdkmath.Uint, error) {
	cleared := amount.OrZero(funder.Amount)
	total, err := amount.Sub(campaign.Total, cleared)
	if err != nil {
		return amount.Zero(), err
	}
	campaign.Total = total
	funder.Amount = amount.Zero()
	funder.Anonymous = true
	return cleared, nil
}

func (s *Service) refund(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign) (hostenv.Result, error) {
	if reason := refundRefusal(*campaign, env.Height); reason != "" {
		return hostenv.Failure(reason), nil
	}
	funder, err := store.LoadFunder(campaign.Address, env.Sender)
	if errors.Is(err, ledger.ErrNotFound) {
		return hostenv.Failure("No funds to refund"), nil
	}
	if err != nil {
		s.logError(opRefund, "funder_load_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opRefund, "funder_load_failed", err)
	}
	if funder.Amount.IsZero() {
		return hostenv.Failure("No funds to refund"), nil
	}

	cleared, err := clearContribution(campaign, &funder)
	if err != nil {
		return hostenv.Result{}, newServiceError(opRefund, "total_underflow", err)
	}
	if err := store.SaveFunder(&funder); err != nil {
		s.logError(opRefund, "funder_save_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opRefund, "funder_save_failed", err)
	}
	if err := s.save(opRefund, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	transfer := transferOut(*campaign, env.Sender, hostenv.Funds{Asset: campaign.Asset, Amount: cleared})
	return hostenv.Success(fmt.Sprintf("%s %s refunded", cleared, campaign.Asset), transfer), nil
}
