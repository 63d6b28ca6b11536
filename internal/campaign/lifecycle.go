package campaign

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

func (s *Service) instantiate(store *ledger.Store, env hostenv.Env, command Instantiate) (hostenv.Result, error) {
	terms := command.Charter.Normalized()
	if terms.Registry == "" || terms.Registry != env.Sender {
		return hostenv.Result{}, newServiceError(opInstantiate, "sender_not_registry", ErrUnauthorized)
	}
	if err := terms.Validate(env.Height); err != nil {
		return hostenv.Result{}, newServiceError(opInstantiate, "invalid_charter", err)
	}

	_, err := store.LoadCampaign(env.Contract)
	if err == nil {
		return hostenv.Result{}, newServiceError(opInstantiate, "campaign_exists", ErrCampaignExists)
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		s.logError(opInstantiate, "campaign_load_failed", err, zap.String("campaign", env.Contract))
		return hostenv.Result{}, newServiceError(opInstantiate, "campaign_load_failed", err)
	}

	campaign := ledger.Campaign{
		Address:           env.Contract,
		CodeHash:          command.CodeHash,
		Registry:          terms.Registry,
		RegistryCodeHash:  terms.RegistryCodeHash,
		Creator:           terms.Creator,
		Title:             terms.Title,
		Subtitle:          terms.Subtitle,
		Description:       terms.Description,
		CoverImage:        terms.CoverImage,
		PledgedMessage:    terms.PledgedMessage,
		FundedMessage:     terms.FundedMessage,
		RewardMessages:    terms.RewardMessages,
		Goal:              terms.Goal,
		Deadline:          terms.Deadline,
		Deadman:           terms.Deadman,
		Categories:        terms.Categories,
		Status:            ledger.StatusFundraising,
		Total:             amount.Zero(),
		Variant:           terms.Variant,
		Asset:             terms.Asset,
		MinimumPledge:     terms.MinimumPledge,
		MaximumPledge:     terms.MaximumPledge,
		CommissionNom:     terms.Fee.CommissionNom,
		CommissionDenom:   terms.Fee.CommissionDenom,
		Upfront:           terms.Fee.Upfront,
		CommissionAddress: terms.Fee.CommissionAddress,
		Reward:            terms.Reward,
		TotalRaised:       amount.Zero(),
		CreatedHeight:     env.Height,
	}
	if err := store.CreateCampaign(&campaign); err != nil {
		s.logError(opInstantiate, "campaign_create_failed", err, zap.String("campaign", env.Contract))
		return hostenv.Result{}, newServiceError(opInstantiate, "campaign_create_failed", err)
	}

	s.logger.Info("campaign instantiated",
		zap.String("campaign", campaign.Address),
		zap.String("creator", campaign.Creator),
		zap.String("variant", string(campaign.Variant)))

	register := hostenv.RegisterCampaign{
		Registry: campaign.Registry,
		Address:  campaign.Address,
		CodeHash: campaign.CodeHash,
	}
	return hostenv.Success("Campaign created", register).WithData("address", campaign.Address), nil
}

func (s *Service) changeText(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command ChangeText) (hostenv.Result, error) {
	if env.Sender != campaign.Creator {
		return hostenv.Result{}, newServiceError(opChangeText, "sender_not_creator", ErrUnauthorized)
	}

	var updates []string
	if command.Title != nil {
		if strings.TrimSpace(*command.Title) == "" {
			return hostenv.Failure("Title cannot be empty"), nil
		}
		campaign.Title = *command.Title
		updates = append(updates, "title")
	}
	if command.Subtitle != nil {
		campaign.Subtitle = *command.Subtitle
		updates = append(updates, "subtitle")
	}
	if command.Description != nil {
		campaign.Description = *command.Description
		updates = append(updates, "description")
	}
	if command.CoverImage != nil {
		campaign.CoverImage = *command.CoverImage
		updates = append(updates, "cover image")
	}
	if command.PledgedMessage != nil {
		campaign.PledgedMessage = *command.PledgedMessage
		updates = append(updates, "pledged message")
	}
	if command.FundedMessage != nil {
		campaign.FundedMessage = *command.FundedMessage
		updates = append(updates, "funded message")
	}
	if command.Categories != nil {
		campaign.Categories = append([]uint16(nil), (*command.Categories)...)
		updates = append(updates, "categories")
	}
	if len(updates) == 0 {
		return hostenv.Failure("Nothing was updated"), nil
	}
	if err := s.save(opChangeText, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	return hostenv.Success(fmt.Sprintf("Updated %s", strings.Join(updates, ", "))), nil
}

func (s *Service) cancel(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign) (hostenv.Result, error) {
	if env.Sender != campaign.Creator {
		return hostenv.Result{}, newServiceError(opCancel, "sender_not_creator", ErrUnauthorized)
	}
	if reason := cancelRefusal(*campaign); reason != "" {
		return hostenv.Failure(reason), nil
	}
	campaign.Status = ledger.StatusExpired
	if err := s.save(opCancel, store, campaign); err != nil {
		return hostenv.Result{}, err
	}
	return hostenv.Success("Campaign cancelled"), nil
}
