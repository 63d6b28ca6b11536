package campaign

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

func (s *Service) issueViewingKey(store *ledger.Store, campaignAddress, owner, entropy string) (string, error) {
	key, err := s.viewingKeys.Generate(fmt.Sprintf("%s:%s:%s", campaignAddress, owner, entropy))
	if err != nil {
		return "", err
	}
	record := ledger.ViewingKey{
		CampaignAddress: campaignAddress,
		Address:         owner,
		KeyHash:         s.viewingKeys.Hash(key),
	}
	if err := store.SaveViewingKey(&record); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) generateViewingKey(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command GenerateViewingKey) (hostenv.Result, error) {
	key, err := s.issueViewingKey(store, campaign.Address, env.Sender, command.Entropy)
	if err != nil {
		s.logError(opGenerateViewingKey, "key_issue_failed", err)
		return hostenv.Result{}, newServiceError(opGenerateViewingKey, "key_issue_failed", err)
	}
	return hostenv.Success("Viewing key generated").WithData("key", key), nil
}

func (s *Service) setViewingKey(store *ledger.Store, env hostenv.Env, campaign *ledger.Campaign, command SetViewingKey) (hostenv.Result, error) {
	if strings.TrimSpace(command.Key) == "" {
		return hostenv.Failure("Viewing key cannot be empty"), nil
	}
	record := ledger.ViewingKey{
		CampaignAddress: campaign.Address,
		Address:         env.Sender,
		KeyHash:         s.viewingKeys.Hash(command.Key),
	}
	if err := store.SaveViewingKey(&record); err != nil {
		s.logError(opSetViewingKey, "key_save_failed", err)
		return hostenv.Result{}, newServiceError(opSetViewingKey, "key_save_failed", err)
	}
	return hostenv.Success("Viewing key set"), nil
}
