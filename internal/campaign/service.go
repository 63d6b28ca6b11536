// Package campaign implements the per-campaign state machine: contributions, refunds,
// payout in both variants, vesting claims, comments, spam flags and viewing keys.
package campaign

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

var noOpLogger = zap.NewNop()

// ViewingKeys derives and verifies viewing keys. Only hashes are persisted.
type ViewingKeys interface {
	Generate(seed string) (string, error)
	Hash(key string) string
	Matches(hash, key string) bool
}

// IDProvider issues token request identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

func (uuidProvider) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ServiceConfig wires the campaign service.
type ServiceConfig struct {
	ViewingKeys ViewingKeys
	IDProvider  IDProvider
	Logger      *zap.Logger
}

// Service executes campaign commands against a transaction-bound ledger store.
type Service struct {
	viewingKeys ViewingKeys
	idProvider  IDProvider
	logger      *zap.Logger
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.ViewingKeys == nil {
		return nil, newServiceError(opServiceNew, "missing_viewing_keys", errMissingViewingKeys)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = uuidProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		viewingKeys: cfg.ViewingKeys,
		idProvider:  idProvider,
		logger:      logger,
	}, nil
}

// Execute runs one command. Business refusals come back as a Failure result with a nil
// error; a non-nil error is fatal and the caller must roll back the transaction.
func (s *Service) Execute(store *ledger.Store, env hostenv.Env, command Command) (hostenv.Result, error) {
	if store == nil {
		return hostenv.Result{}, newServiceError(Operation(command), "missing_store", errMissingStore)
	}
	if instantiate, ok := command.(Instantiate); ok {
		return s.instantiate(store, env, instantiate)
	}

	campaign, err := store.LoadCampaign(env.Contract)
	if errors.Is(err, ledger.ErrNotFound) {
		return hostenv.Result{}, newServiceError(Operation(command), "campaign_not_found", ErrCampaignNotFound)
	}
	if err != nil {
		s.logError(Operation(command), "campaign_load_failed", err, zap.String("campaign", env.Contract))
		return hostenv.Result{}, newServiceError(Operation(command), "campaign_load_failed", err)
	}
	if expire(&campaign, env.Height) {
		if err := store.SaveCampaign(&campaign); err != nil {
			s.logError(opExpire, "campaign_save_failed", err, zap.String("campaign", campaign.Address))
			return hostenv.Result{}, newServiceError(opExpire, "campaign_save_failed", err)
		}
	}

	var result hostenv.Result
	switch typed := command.(type) {
	case ChangeText:
		result, err = s.changeText(store, env, &campaign, typed)
	case Contribute:
		result, err = s.contribute(store, env, &campaign, typed)
	case Refund:
		result, err = s.refund(store, env, &campaign)
	case Cancel:
		result, err = s.cancel(store, env, &campaign)
	case PayOut:
		result, err = s.payOut(store, env, &campaign)
	case ClaimReward:
		result, err = s.claimReward(store, env, &campaign, typed)
	case Comment:
		result, err = s.comment(store, env, &campaign, typed)
	case FlagSpam:
		result, err = s.flagSpam(store, env, &campaign, typed)
	case GenerateViewingKey:
		result, err = s.generateViewingKey(store, env, &campaign, typed)
	case SetViewingKey:
		result, err = s.setViewingKey(store, env, &campaign, typed)
	case AcknowledgeToken:
		result, err = s.acknowledgeToken(store, env, &campaign, typed)
	default:
		return hostenv.Result{}, newServiceError("campaign.execute", "unknown_command", fmt.Errorf("%w: %T", ErrInvalidCommand, command))
	}
	if err != nil {
		return hostenv.Result{}, err
	}
	return result, nil
}

// RefreshStatus persists lazy expiry for one campaign and reports whether it changed.
func (s *Service) RefreshStatus(store *ledger.Store, address string, height uint64) (bool, error) {
	campaign, err := store.LoadCampaign(address)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, newServiceError(opExpire, "campaign_not_found", ErrCampaignNotFound)
	}
	if err != nil {
		return false, newServiceError(opExpire, "campaign_load_failed", err)
	}
	if !expire(&campaign, height) {
		return false, nil
	}
	if err := store.SaveCampaign(&campaign); err != nil {
		s.logError(opExpire, "campaign_save_failed", err, zap.String("campaign", address))
		return false, newServiceError(opExpire, "campaign_save_failed", err)
	}
	s.logger.Info("campaign expired",
		zap.String("campaign", address),
		zap.Uint64("height", height))
	return true, nil
}

func (s *Service) save(operation string, store *ledger.Store, campaign *ledger.Campaign) error {
	if err := store.SaveCampaign(campaign); err != nil {
		s.logError(operation, "campaign_save_failed", err, zap.String("campaign", campaign.Address))
		return newServiceError(operation, "campaign_save_failed", err)
	}
	return nil
}

// transferOut hands funds held by the campaign back out in its contribution asset.
func transferOut(campaign ledger.Campaign, to string, value hostenv.Funds) hostenv.Instruction {
	if campaign.Variant == charter.VariantTokenReward {
		return hostenv.TokenTransfer{Token: value.Asset, From: campaign.Address, To: to, Amount: value.Amount}
	}
	return hostenv.BankTransfer{From: campaign.Address, To: to, Denom: value.Asset, Amount: value.Amount}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s == nil || s.logger == nil || err == nil {
		return
	}
	allFields := make([]zap.Field, 0, len(fields)+3)
	allFields = append(allFields,
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	)
	allFields = append(allFields, fields...)
	s.logger.Error("campaign operation failed", allFields...)
}
