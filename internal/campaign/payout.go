package campaign

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

// CommissionSplit divides total between creator and platform. The commission is computed
// with a 256-bit intermediate and truncated to 128 bits. When it does not exceed the
// upfront fee already collected, the creator receives everything. Otherwise the upfront
// fee is credited against it before the payment is derived.
func CommissionSplit(total, nom, denom, upfront sdkmath.Uint) (payment, commission sdkmath.Uint, err error) {
	total = amount.OrZero(total)
	upfront = amount.OrZero(upfront)
	if amount.OrZero(nom).IsZero() {
		return total, amount.Zero(), nil
	}
	gross, err := amount.MulDivTruncate(total, nom, amount.OrZero(denom))
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if gross.IsZero() || gross.LTE(upfront) {
		return total, amount.Zero(), nil
	}
	adjusted, err := amount.Sub(gross, upfront)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	payment, err = amount.Sub(total, adjusted)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	return payment, adjusted, nil
}

func (s *Service) payOut(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign) (hostenv.Result, error) {
	if env.Sender != campaign.Creator {
		return hostenv.Result{}, newServiceError(opPayOut, "sender_not_creator", ErrUnauthorized)
	}
	if reason := payOutRefusal(*campaign, env.Height); reason != "" {
		return hostenv.Failure(reason), nil
	}

	var (
		result hostenv.Result
		err    error
	)
	switch campaign.Variant {
	case charter.VariantCommission:
		result, err = s.payOutCommission(campaign)
	case charter.VariantTokenReward:
		result, err = s.payOutTokenReward(store, env, campaign)
	default:
		err = newServiceError(opPayOut, "unknown_variant", fmt.Errorf("%w: variant %q", ErrInvalidCommand, campaign.Variant))
	}
	if err != nil {
		return hostenv.Result{}, err
	}

	campaign.PaidOut = true
	campaign.TotalRaised = campaign.Total
	if err := s.save(opPayOut, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	s.logger.Info("campaign paid out",
		zap.String("campaign", campaign.Address),
		zap.String("total", campaign.Total.String()))
	return result, nil
}

func (s *Service) payOutCommission(campaign *ledger.Campaign) (hostenv.Result, error) {
	payment, commission, err := CommissionSplit(campaign.Total, campaign.CommissionNom, campaign.CommissionDenom, campaign.Upfront)
	if err != nil {
		s.logError(opPayOut, "commission_arithmetic", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opPayOut, "commission_arithmetic", err)
	}
	instructions := []hostenv.Instruction{
		hostenv.BankTransfer{From: campaign.Address, To: campaign.Creator, Denom: campaign.Asset, Amount: payment},
	}
	if commission.IsZero() {
		return hostenv.Success(fmt.Sprintf("Pay out %s %s", campaign.Total, campaign.Asset), instructions...), nil
	}
	instructions = append(instructions, hostenv.BankTransfer{
		From:   campaign.Address,
		To:     campaign.CommissionAddress,
		Denom:  campaign.Asset,
		Amount: commission,
	})
	message := fmt.Sprintf("Pay out %s %s: payment %s, fee %s", campaign.Total, campaign.Asset, payment, commission)
	return hostenv.Success(message, instructions...), nil
}

func (s *Service) payOutTokenReward(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign) (hostenv.Result, error) {
	instructions := []hostenv.Instruction{
		hostenv.TokenTransfer{Token: campaign.Asset, From: campaign.Address, To: campaign.Creator, Amount: campaign.Total},
	}
	result := hostenv.Success(fmt.Sprintf("Pay out %s %s", campaign.Total, campaign.Asset))
	if campaign.Reward == nil {
		result.Instructions = instructions
		return result, nil
	}

	requestID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPayOut, "request_id_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opPayOut, "request_id_failed", err)
	}
	pending := ledger.PendingTokenRequest{
		RequestID:       requestID,
		CampaignAddress: campaign.Address,
		CreatedHeight:   env.Height,
	}
	if err := store.CreatePendingTokenRequest(&pending); err != nil {
		s.logError(opPayOut, "pending_request_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opPayOut, "pending_request_failed", err)
	}

	cfg := campaign.Reward.Normalized()
	admin := cfg.Token.Admin
	if admin == "" {
		admin = campaign.Address
	}
	instructions = append(instructions, hostenv.InstantiateToken{
		RequestID:      requestID,
		Campaign:       campaign.Address,
		CodeID:         cfg.Token.CodeID,
		CodeHash:       cfg.Token.CodeHash,
		Name:           cfg.Token.Name,
		Symbol:         cfg.Token.Symbol,
		Decimals:       cfg.Token.Decimals,
		Admin:          admin,
		InitialHolder:  campaign.Address,
		InitialBalance: cfg.Amount,
		Features: hostenv.TokenFeatures{
			PublicTotalSupply: cfg.Token.PublicTotalSupply,
			EnableDeposit:     cfg.Token.EnableDeposit,
			EnableRedeem:      cfg.Token.EnableRedeem,
			EnableMint:        cfg.Token.EnableMint,
			EnableBurn:        cfg.Token.EnableBurn,
		},
	})
	result.Instructions = instructions
	return result.WithData("token_request_id", requestID), nil
}

func (s *Service) acknowledgeToken(store *ledger.Store, _ hostenv.Env, campaign *ledger.Campaign, command AcknowledgeToken) (hostenv.Result, error) {
	token := strings.TrimSpace(command.Token)
	if strings.TrimSpace(command.RequestID) == "" || token == "" {
		return hostenv.Result{}, newServiceError(opAcknowledgeToken, "invalid_payload", ErrInvalidCommand)
	}
	pending, err := store.LoadPendingTokenRequest(command.RequestID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && pending.CampaignAddress != campaign.Address) {
		return hostenv.Result{}, newServiceError(opAcknowledgeToken, "unknown_request", ErrUnknownTokenRequest)
	}
	if err != nil {
		s.logError(opAcknowledgeToken, "request_load_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opAcknowledgeToken, "request_load_failed", err)
	}
	if pending.Resolved {
		if pending.TokenAddress != token {
			return hostenv.Result{}, newServiceError(opAcknowledgeToken, "conflicting_token", ErrTokenConflict)
		}
		return hostenv.Success("Reward token already recorded").WithData("token", token), nil
	}

	pending.Resolved = true
	pending.TokenAddress = token
	if err := store.SavePendingTokenRequest(&pending); err != nil {
		s.logError(opAcknowledgeToken, "request_save_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opAcknowledgeToken, "request_save_failed", err)
	}
	campaign.RewardToken = token
	if err := s.save(opAcknowledgeToken, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	return hostenv.Success("Reward token recorded").WithData("token", token), nil
}

func (s *Service) claimReward(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command ClaimReward) (hostenv.Result, error) {
	if campaign.Reward == nil {
		return hostenv.Failure("Campaign has no reward allocation"), nil
	}
	if !campaign.PaidOut {
		return hostenv.Failure("Cannot claim reward before pay out"), nil
	}
	if campaign.RewardToken == "" {
		return hostenv.Failure("Reward token has not been issued yet"), nil
	}
	cfg := campaign.Reward.Normalized()

	var (
		milestones []reward.Milestone
		claims     reward.Claims
		persist    func(reward.Claims) error
		err        error
	)
	if command.Creator {
		milestones, err = reward.CreatorMilestones(cfg, campaign.Creator, env.Sender)
		if err != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "reward_arithmetic", err)
		}
		if milestones == nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "sender_not_beneficiary", ErrUnauthorized)
		}
		claim, loadErr := store.LoadCreatorClaim(campaign.Address, env.Sender)
		if errors.Is(loadErr, ledger.ErrNotFound) {
			claim = ledger.CreatorClaim{CampaignAddress: campaign.Address, Beneficiary: env.Sender}
		} else if loadErr != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "claim_load_failed", loadErr)
		}
		if claims, err = reward.ParseClaims(claim.Claimed); err != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "claim_decode_failed", err)
		}
		persist = func(updated reward.Claims) error {
			claim.Claimed = updated.String()
			return store.SaveCreatorClaim(&claim)
		}
	} else {
		funder, loadErr := store.LoadFunder(campaign.Address, env.Sender)
		if errors.Is(loadErr, ledger.ErrNotFound) {
			return hostenv.Failure("No contribution to claim rewards for"), nil
		}
		if loadErr != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "funder_load_failed", loadErr)
		}
		if funder.Amount.IsZero() {
			return hostenv.Failure("No contribution to claim rewards for"), nil
		}
		milestones, err = reward.ContributorMilestones(cfg, funder.Amount, campaign.TotalRaised)
		if err != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "reward_arithmetic", err)
		}
		if claims, err = reward.ParseClaims(funder.RewardClaimed); err != nil {
			return hostenv.Result{}, newServiceError(opClaimReward, "claim_decode_failed", err)
		}
		persist = func(updated reward.Claims) error {
			funder.RewardClaimed = updated.String()
			return store.SaveFunder(&funder)
		}
	}

	value, updated, err := reward.Claim(milestones, claims, command.Milestone, env.Height)
	switch {
	case errors.Is(err, reward.ErrNothingToClaim):
		return hostenv.Failure("No reward to claim"), nil
	case errors.Is(err, reward.ErrMilestoneOutOfRange):
		return hostenv.Failure(fmt.Sprintf("Milestone %d does not exist", command.Milestone)), nil
	case errors.Is(err, reward.ErrAlreadyClaimed):
		return hostenv.Failure(fmt.Sprintf("Milestone %d already claimed", command.Milestone)), nil
	case errors.Is(err, reward.ErrNotVested):
		return hostenv.Failure(fmt.Sprintf("Milestone %d has not vested yet", command.Milestone)), nil
	case err != nil:
		return hostenv.Result{}, newServiceError(opClaimReward, "claim_failed", err)
	}

	if err := persist(updated); err != nil {
		s.logError(opClaimReward, "claim_save_failed", err, zap.String("campaign", campaign.Address))
		return hostenv.Result{}, newServiceError(opClaimReward, "claim_save_failed", err)
	}
	transfer := hostenv.TokenTransfer{
		Token:  campaign.RewardToken,
		From:   campaign.Address,
		To:     env.Sender,
		Amount: value,
	}
	return hostenv.Success(fmt.Sprintf("Claimed %s reward tokens", value), transfer), nil
}
