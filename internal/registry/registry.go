// Package registry coordinates campaign creation: it validates creation terms, dispatches
// the one-shot instantiation and accepts the new campaign's registration callback.
package registry

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

const campaignAddressPrefix = "campaign1"

var (
	// ErrUnauthorized reports a caller that may not perform the action.
	ErrUnauthorized = errors.New("registry: unauthorized")
	// ErrRegistryNotFound reports an unknown registry address.
	ErrRegistryNotFound = errors.New("registry: not found")
	// ErrCreationInFlight rejects a creation while another awaits registration.
	ErrCreationInFlight = errors.New("registry: campaign creation already in progress")
	// ErrInvalidConfig reports malformed registry configuration.
	ErrInvalidConfig = errors.New("registry: invalid configuration")

	errMissingPermits = errors.New("permit verifier is required")
	noOpLogger        = zap.NewNop()
)

// ServiceError carries a machine-readable code of the form operation.reason.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "registry.service.new"
	opBootstrap      = "registry.bootstrap"
	opCreateCampaign = "registry.create_campaign"
	opRegister       = "registry.register"
	opUpdateConfig   = "registry.update_config"
	opRevokePermit   = "registry.revoke_permit"
	opListCampaigns  = "registry.list_campaigns"
	opValidatePermit = "registry.validate_permit"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Command is a state-changing call addressed to the registry. The set is closed.
type Command interface {
	operation() string
}

// CreateCampaign asks the registry to spawn a campaign for the sender. Registry-owned
// terms (registry identity, creator, deadman, fee, pledge limits) are filled in by the
// registry; attached funds are the upfront creation fee.
type CreateCampaign struct {
	Terms charter.Charter
}

// Register is the callback of a freshly instantiated campaign.
type Register struct {
	Address  string
	CodeHash string
}

// UpdateConfig changes registry configuration. Nil fields are left unchanged.
type UpdateConfig struct {
	Owner             *string
	CampaignCodeID    *uint64
	CampaignCodeHash  *string
	Deadman           *uint64
	CommissionNom     *sdkmath.Uint
	CommissionDenom   *sdkmath.Uint
	CommissionAddress *string
	DefaultAsset      *string
	PledgeLimits      *[]ledger.PledgeLimit
}

// RevokePermit blocks one of the sender's named permits.
type RevokePermit struct {
	Name string
}

func (CreateCampaign) operation() string { return opCreateCampaign }
func (Register) operation() string       { return opRegister }
func (UpdateConfig) operation() string   { return opUpdateConfig }
func (RevokePermit) operation() string   { return opRevokePermit }

// Operation returns the operation name used in logs, metrics and error codes.
func Operation(command Command) string {
	if command == nil {
		return "registry.unknown"
	}
	return command.operation()
}

// PermitVerifier checks permit signatures.
type PermitVerifier interface {
	Verify(permit string) (auth.PermitClaims, error)
}

// ServiceConfig wires the registry service.
type ServiceConfig struct {
	Permits PermitVerifier
	Logger  *zap.Logger
}

// Service executes registry commands against a transaction-bound ledger store.
type Service struct {
	permits PermitVerifier
	logger  *zap.Logger
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Permits == nil {
		return nil, newServiceError(opServiceNew, "missing_permits", errMissingPermits)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{permits: cfg.Permits, logger: logger}, nil
}

// Bootstrap stores the initial configuration of a registry unless one already exists.
func (s *Service) Bootstrap(store *ledger.Store, config ledger.RegistryConfig) error {
	if strings.TrimSpace(config.Address) == "" || strings.TrimSpace(config.Owner) == "" {
		return newServiceError(opBootstrap, "invalid_config", fmt.Errorf("%w: address and owner are required", ErrInvalidConfig))
	}
	if err := validateCommission(config.CommissionNom, config.CommissionDenom); err != nil {
		return newServiceError(opBootstrap, "invalid_config", err)
	}
	_, err := store.LoadRegistryConfig(config.Address)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return newServiceError(opBootstrap, "config_load_failed", err)
	}
	config.CommissionNom = amount.OrZero(config.CommissionNom)
	config.CommissionDenom = amount.OrZero(config.CommissionDenom)
	config.Creating = false
	config.CampaignCount = 0
	if err := store.SaveRegistryConfig(&config); err != nil {
		s.logError(opBootstrap, "config_save_failed", err)
		return newServiceError(opBootstrap, "config_save_failed", err)
	}
	s.logger.Info("registry bootstrapped", zap.String("registry", config.Address), zap.String("owner", config.Owner))
	return nil
}

func validateCommission(nom, denom sdkmath.Uint) error {
	if !amount.OrZero(nom).IsZero() && amount.OrZero(denom).IsZero() {
		return fmt.Errorf("%w: commission denominator must be greater than 0", ErrInvalidConfig)
	}
	return nil
}

// Execute runs one command. Business refusals come back as a Failure result with a nil
// error; a non-nil error is fatal and the caller must roll back the transaction.
func (s *Service) Execute(store *ledger.Store, env hostenv.Env, command Command) (hostenv.Result, error) {
	config, err := store.LoadRegistryConfig(env.Contract)
	if errors.Is(err, ledger.ErrNotFound) {
		return hostenv.Result{}, newServiceError(Operation(command), "registry_not_found", ErrRegistryNotFound)
	}
	if err != nil {
		s.logError(Operation(command), "config_load_failed", err)
		return hostenv.Result{}, newServiceError(Operation(command), "config_load_failed", err)
	}

	switch typed := command.(type) {
	case CreateCampaign:
		return s.createCampaign(store, env, &config, typed)
	case Register:
		return s.register(store, env, &config, typed)
	case UpdateConfig:
		return s.updateConfig(store, env, &config, typed)
	case RevokePermit:
		return s.revokePermit(store, env, &config, typed)
	default:
		return hostenv.Result{}, newServiceError("registry.execute", "unknown_command", fmt.Errorf("unknown command %T", command))
	}
}

// CampaignLabel derives the deterministic instantiation label.
func CampaignLabel(registry string, count uint32, height uint64) string {
	salt := base64.StdEncoding.EncodeToString([]byte(strconv.FormatUint(height, 10)))
	return fmt.Sprintf("%s-Campaign-%d-%s", registry, count, salt)
}

// CampaignAddress derives a campaign address from its label.
func CampaignAddress(label string) string {
	digest := blake3.Sum256([]byte(label))
	return campaignAddressPrefix + hex.EncodeToString(digest[:20])
}

func (s *Service) createCampaign(store *ledger.Store, env hostenv.Env, config *ledger.RegistryConfig, command CreateCampaign) (hostenv.Result, error) {
	terms := command.Terms.Normalized()
	terms.Registry = config.Address
	terms.RegistryCodeHash = config.CodeHash
	terms.Creator = env.Sender
	if strings.TrimSpace(terms.Asset) == "" {
		terms.Asset = config.DefaultAsset
	}
	terms.Deadman = config.Deadman
	terms.Fee = charter.Fee{
		CommissionNom:     config.CommissionNom,
		CommissionDenom:   config.CommissionDenom,
		Upfront:           amount.Zero(),
		CommissionAddress: config.CommissionAddress,
	}
	if limit, ok := config.PledgeLimitFor(terms.Asset); ok {
		terms.MinimumPledge = amount.OrZero(limit.Minimum)
		terms.MaximumPledge = amount.OrZero(limit.Maximum)
	}

	var instructions []hostenv.Instruction
	if env.Funds != nil && !amount.OrZero(env.Funds.Amount).IsZero() {
		if strings.TrimSpace(env.Funds.Asset) != terms.Asset {
			return hostenv.Result{}, newServiceError(opCreateCampaign, "invalid_terms",
				fmt.Errorf("%w: creation fee must be paid in %s", charter.ErrValidation, terms.Asset))
		}
		terms.Fee.Upfront = env.Funds.Amount
		instructions = append(instructions, hostenv.BankTransfer{
			From:   config.Address,
			To:     config.Owner,
			Denom:  env.Funds.Asset,
			Amount: env.Funds.Amount,
		})
	}
	if err := terms.Validate(env.Height); err != nil {
		return hostenv.Result{}, newServiceError(opCreateCampaign, "invalid_terms", err)
	}
	if config.Creating {
		return hostenv.Result{}, newServiceError(opCreateCampaign, "creation_in_flight", ErrCreationInFlight)
	}

	label := CampaignLabel(config.Address, config.CampaignCount, env.Height)
	address := CampaignAddress(label)
	config.Creating = true
	if err := store.SaveRegistryConfig(config); err != nil {
		s.logError(opCreateCampaign, "config_save_failed", err)
		return hostenv.Result{}, newServiceError(opCreateCampaign, "config_save_failed", err)
	}

	instructions = append(instructions, hostenv.InstantiateCampaign{
		CodeID:   config.CampaignCodeID,
		CodeHash: config.CampaignCodeHash,
		Label:    label,
		Address:  address,
		Init:     terms,
	})
	s.logger.Info("campaign creation dispatched",
		zap.String("registry", config.Address),
		zap.String("campaign", address),
		zap.String("creator", env.Sender))
	return hostenv.Success("Campaign creation dispatched", instructions...).
		WithData("address", address).
		WithData("label", label), nil
}

func (s *Service) register(store *ledger.Store, env hostenv.Env, config *ledger.RegistryConfig, command Register) (hostenv.Result, error) {
	if !config.Creating {
		return hostenv.Result{}, newServiceError(opRegister, "no_creation_pending", ErrUnauthorized)
	}
	if env.Sender != command.Address {
		return hostenv.Result{}, newServiceError(opRegister, "sender_mismatch", ErrUnauthorized)
	}
	entry := ledger.RegistryEntry{
		Registry:        config.Address,
		ID:              config.CampaignCount,
		CampaignAddress: command.Address,
		CodeHash:        command.CodeHash,
	}
	if err := store.AppendRegistryEntry(&entry); err != nil {
		s.logError(opRegister, "entry_append_failed", err)
		return hostenv.Result{}, newServiceError(opRegister, "entry_append_failed", err)
	}
	config.Creating = false
	config.CampaignCount++
	if err := store.SaveRegistryConfig(config); err != nil {
		s.logError(opRegister, "config_save_failed", err)
		return hostenv.Result{}, newServiceError(opRegister, "config_save_failed", err)
	}
	return hostenv.Success("Campaign registered").WithData("id", entry.ID), nil
}

func (s *Service) updateConfig(store *ledger.Store, env hostenv.Env, config *ledger.RegistryConfig, command UpdateConfig) (hostenv.Result, error) {
	if env.Sender != config.Owner {
		return hostenv.Result{}, newServiceError(opUpdateConfig, "sender_not_owner", ErrUnauthorized)
	}
	var updates []string
	if command.Owner != nil {
		if strings.TrimSpace(*command.Owner) == "" {
			return hostenv.Result{}, newServiceError(opUpdateConfig, "invalid_config", fmt.Errorf("%w: owner cannot be empty", ErrInvalidConfig))
		}
		config.Owner = *command.Owner
		updates = append(updates, "owner")
	}
	if command.CampaignCodeID != nil {
		config.CampaignCodeID = *command.CampaignCodeID
		updates = append(updates, "campaign code id")
	}
	if command.CampaignCodeHash != nil {
		config.CampaignCodeHash = *command.CampaignCodeHash
		updates = append(updates, "campaign code hash")
	}
	if command.Deadman != nil {
		config.Deadman = *command.Deadman
		updates = append(updates, "deadman")
	}
	if command.CommissionNom != nil {
		config.CommissionNom = *command.CommissionNom
		updates = append(updates, "commission rate")
	}
	if command.CommissionDenom != nil {
		config.CommissionDenom = *command.CommissionDenom
		if command.CommissionNom == nil {
			updates = append(updates, "commission rate")
		}
	}
	if command.CommissionAddress != nil {
		config.CommissionAddress = *command.CommissionAddress
		updates = append(updates, "commission address")
	}
	if command.DefaultAsset != nil {
		config.DefaultAsset = *command.DefaultAsset
		updates = append(updates, "default asset")
	}
	if command.PledgeLimits != nil {
		config.PledgeLimits = append([]ledger.PledgeLimit(nil), (*command.PledgeLimits)...)
		updates = append(updates, "pledge limits")
	}
	if len(updates) == 0 {
		return hostenv.Failure("Nothing was updated"), nil
	}
	if err := validateCommission(config.CommissionNom, config.CommissionDenom); err != nil {
		return hostenv.Result{}, newServiceError(opUpdateConfig, "invalid_config", err)
	}
	if err := store.SaveRegistryConfig(config); err != nil {
		s.logError(opUpdateConfig, "config_save_failed", err)
		return hostenv.Result{}, newServiceError(opUpdateConfig, "config_save_failed", err)
	}
	return hostenv.Success(fmt.Sprintf("Updated %s", strings.Join(updates, ", "))), nil
}

func (s *Service) revokePermit(store *ledger.Store, env hostenv.Env, config *ledger.RegistryConfig, command RevokePermit) (hostenv.Result, error) {
	name := strings.TrimSpace(command.Name)
	if name == "" {
		return hostenv.Failure("Permit name cannot be empty"), nil
	}
	revoked := ledger.RevokedPermit{Registry: config.Address, Owner: env.Sender, Name: name}
	if err := store.RevokePermit(&revoked); err != nil {
		s.logError(opRevokePermit, "revoke_failed", err)
		return hostenv.Result{}, newServiceError(opRevokePermit, "revoke_failed", err)
	}
	return hostenv.Success(fmt.Sprintf("Permit %s revoked", name)), nil
}

// Entry is one registered campaign in a listing.
type Entry struct {
	ID       uint32 `json:"id"`
	Address  string `json:"address"`
	CodeHash string `json:"code_hash"`
}

// Page is one page of registered campaigns, newest first.
type Page struct {
	Campaigns []Entry `json:"campaigns"`
	Count     int64   `json:"count"`
}

// ListCampaigns returns registered campaigns newest first with the total count.
func (s *Service) ListCampaigns(store *ledger.Store, registry string, page, pageSize uint32) (Page, error) {
	entries, count, err := store.ListRegistryEntries(registry, page, pageSize)
	if err != nil {
		return Page{}, newServiceError(opListCampaigns, "entry_list_failed", err)
	}
	result := Page{Campaigns: make([]Entry, 0, len(entries)), Count: count}
	for _, entry := range entries {
		result.Campaigns = append(result.Campaigns, Entry{ID: entry.ID, Address: entry.CampaignAddress, CodeHash: entry.CodeHash})
	}
	return result, nil
}

// Config returns the stored configuration of a registry.
func (s *Service) Config(store *ledger.Store, registry string) (ledger.RegistryConfig, error) {
	config, err := store.LoadRegistryConfig(registry)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.RegistryConfig{}, newServiceError("registry.config", "registry_not_found", ErrRegistryNotFound)
	}
	if err != nil {
		return ledger.RegistryConfig{}, newServiceError("registry.config", "config_load_failed", err)
	}
	return config, nil
}

// ValidatePermit verifies a permit for a campaign status query and returns its owner.
func (s *Service) ValidatePermit(store *ledger.Store, registry, permit, campaign string) (string, error) {
	claims, err := s.permits.Verify(permit)
	if err != nil {
		return "", newServiceError(opValidatePermit, "invalid_permit", fmt.Errorf("%w: %v", ErrUnauthorized, err))
	}
	revoked, err := store.IsPermitRevoked(registry, claims.Owner(), claims.Name)
	if err != nil {
		return "", newServiceError(opValidatePermit, "revocation_lookup_failed", err)
	}
	if revoked {
		return "", newServiceError(opValidatePermit, "permit_revoked", ErrUnauthorized)
	}
	if !claims.Allows(campaign, auth.PermissionStatus) {
		return "", newServiceError(opValidatePermit, "permit_scope", ErrUnauthorized)
	}
	return claims.Owner(), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("registry service error", attrs...)
}
