// Package host executes inbound calls against the campaign and registry services. One
// call and every instruction it triggers run in a single database transaction, in FIFO
// order; a fatal error anywhere rolls the whole call back.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
)

var (
	// ErrNestedFailure reports an instruction whose target refused it.
	ErrNestedFailure = errors.New("host: triggered call failed")

	errMissingStore     = errors.New("host: store is required")
	errMissingCampaigns = errors.New("host: campaign service is required")
	errMissingRegistry  = errors.New("host: registry service is required")
)

// Bank moves native coins on behalf of a contract.
type Bank interface {
	Transfer(store *ledger.Store, height uint64, transfer hostenv.BankTransfer) error
}

// TokenLedger moves fungible tokens on behalf of a contract.
type TokenLedger interface {
	Transfer(store *ledger.Store, height uint64, transfer hostenv.TokenTransfer) error
}

// TokenMinter instantiates reward tokens. A non-empty address is acknowledged to the
// requesting campaign within the same call; an empty one defers acknowledgement.
type TokenMinter interface {
	Instantiate(store *ledger.Store, height uint64, request hostenv.InstantiateToken) (string, error)
}

// Event announces a committed change to a campaign.
type Event struct {
	Campaign  string
	Operation string
	Status    hostenv.ResponseStatus
	Message   string
	Height    uint64
	Timestamp time.Time
}

// Publisher receives events after commit.
type Publisher interface {
	CampaignChanged(event Event)
}

// Config wires the executor.
type Config struct {
	Store     *ledger.Store
	Campaigns *campaign.Service
	Registry  *registry.Service
	Bank      Bank
	Tokens    TokenLedger
	Minter    TokenMinter
	Publisher Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Host is the transactional executor.
type Host struct {
	store     *ledger.Store
	campaigns *campaign.Service
	registry  *registry.Service
	bank      Bank
	tokens    TokenLedger
	minter    TokenMinter
	publisher Publisher
	logger    *zap.Logger
	clock     func() time.Time
}

// New validates the configuration and builds a Host. Missing collaborators default to
// the outbox.
func New(cfg Config) (*Host, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Campaigns == nil {
		return nil, errMissingCampaigns
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	outbox := NewOutbox(clock)
	h := &Host{
		store:     cfg.Store,
		campaigns: cfg.Campaigns,
		registry:  cfg.Registry,
		bank:      cfg.Bank,
		tokens:    cfg.Tokens,
		minter:    cfg.Minter,
		publisher: cfg.Publisher,
		logger:    logger,
		clock:     clock,
	}
	if h.bank == nil {
		h.bank = outbox
	}
	if h.tokens == nil {
		h.tokens = outboxTokens{outbox: outbox}
	}
	if h.minter == nil {
		h.minter = outbox
	}
	return h, nil
}

// Store exposes the non-transactional store for read-only queries.
func (h *Host) Store() *ledger.Store {
	return h.store
}

// ExecuteCampaign runs a campaign command addressed to env.Contract.
func (h *Host) ExecuteCampaign(ctx context.Context, env hostenv.Env, command campaign.Command) (hostenv.Result, error) {
	return h.run(ctx, campaign.Operation(command), env, func(store *ledger.Store, touched *touchedSet) (hostenv.Result, error) {
		touched.add(env.Contract)
		return h.campaigns.Execute(store, env, command)
	})
}

// ExecuteRegistry runs a registry command addressed to env.Contract.
func (h *Host) ExecuteRegistry(ctx context.Context, env hostenv.Env, command registry.Command) (hostenv.Result, error) {
	return h.run(ctx, registry.Operation(command), env, func(store *ledger.Store, _ *touchedSet) (hostenv.Result, error) {
		return h.registry.Execute(store, env, command)
	})
}

type entryPoint func(store *ledger.Store, touched *touchedSet) (hostenv.Result, error)

func (h *Host) run(ctx context.Context, operation string, env hostenv.Env, entry entryPoint) (hostenv.Result, error) {
	started := h.clock()
	touched := &touchedSet{}
	var result hostenv.Result
	err := h.store.Transaction(ctx, func(store *ledger.Store) error {
		var execErr error
		result, execErr = entry(store, touched)
		if execErr != nil {
			return execErr
		}
		return h.drain(store, env.Height, env.Contract, result.Instructions, touched)
	})
	elapsed := h.clock().Sub(started).Seconds()
	if err != nil {
		metrics.RecordCommand(operation, metrics.OutcomeError, elapsed)
		h.logger.Warn("call rolled back",
			zap.String("operation", operation),
			zap.String("contract", env.Contract),
			zap.String("sender", env.Sender),
			zap.Error(err))
		return hostenv.Result{}, err
	}

	outcome := metrics.OutcomeSuccess
	if !result.Succeeded() {
		outcome = metrics.OutcomeFailure
	}
	metrics.RecordCommand(operation, outcome, elapsed)
	h.publish(operation, env.Height, result, touched)
	return result, nil
}

type pending struct {
	emitter     string
	instruction hostenv.Instruction
}

func (h *Host) drain(store *ledger.Store, height uint64, emitter string, instructions []hostenv.Instruction, touched *touchedSet) error {
	queue := make([]pending, 0, len(instructions))
	for _, instruction := range instructions {
		queue = append(queue, pending{emitter: emitter, instruction: instruction})
	}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		produced, err := h.dispatch(store, height, next, touched)
		if err != nil {
			return fmt.Errorf("%s from %s: %w", next.instruction.Kind(), next.emitter, err)
		}
		metrics.RecordInstruction(next.instruction.Kind())
		queue = append(queue, produced...)
	}
	return nil
}

func (h *Host) dispatch(store *ledger.Store, height uint64, next pending, touched *touchedSet) ([]pending, error) {
	switch instruction := next.instruction.(type) {
	case hostenv.BankTransfer:
		return nil, h.bank.Transfer(store, height, instruction)
	case hostenv.TokenTransfer:
		return nil, h.tokens.Transfer(store, height, instruction)
	case hostenv.InstantiateCampaign:
		touched.add(instruction.Address)
		env := hostenv.Env{Height: height, Sender: next.emitter, Contract: instruction.Address}
		result, err := h.campaigns.Execute(store, env, campaign.Instantiate{Charter: instruction.Init, CodeHash: instruction.CodeHash})
		return h.follow(instruction.Address, result, err)
	case hostenv.RegisterCampaign:
		env := hostenv.Env{Height: height, Sender: next.emitter, Contract: instruction.Registry}
		result, err := h.registry.Execute(store, env, registry.Register{Address: instruction.Address, CodeHash: instruction.CodeHash})
		return h.follow(instruction.Registry, result, err)
	case hostenv.InstantiateToken:
		token, err := h.minter.Instantiate(store, height, instruction)
		if err != nil || token == "" {
			return nil, err
		}
		env := hostenv.Env{Height: height, Sender: token, Contract: instruction.Campaign}
		result, err := h.campaigns.Execute(store, env, campaign.AcknowledgeToken{RequestID: instruction.RequestID, Token: token})
		return h.follow(instruction.Campaign, result, err)
	default:
		return nil, fmt.Errorf("unsupported instruction %T", next.instruction)
	}
}

func (h *Host) follow(emitter string, result hostenv.Result, err error) ([]pending, error) {
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return nil, fmt.Errorf("%w: %s", ErrNestedFailure, result.Message)
	}
	produced := make([]pending, 0, len(result.Instructions))
	for _, instruction := range result.Instructions {
		produced = append(produced, pending{emitter: emitter, instruction: instruction})
	}
	return produced, nil
}

func (h *Host) publish(operation string, height uint64, result hostenv.Result, touched *touchedSet) {
	if h.publisher == nil {
		return
	}
	now := h.clock()
	for _, address := range touched.addresses {
		h.publisher.CampaignChanged(Event{
			Campaign:  address,
			Operation: operation,
			Status:    result.Status,
			Message:   result.Message,
			Height:    height,
			Timestamp: now,
		})
	}
}

type touchedSet struct {
	addresses []string
}

func (t *touchedSet) add(address string) {
	if address == "" {
		return
	}
	for _, existing := range t.addresses {
		if existing == address {
			return
		}
	}
	t.addresses = append(t.addresses, address)
}

// ClockHeight derives heights from wall-clock seconds.
func ClockHeight(clock func() time.Time) func() uint64 {
	if clock == nil {
		clock = time.Now
	}
	return func() uint64 {
		seconds := clock().Unix()
		if seconds < 0 {
			return 0
		}
		return uint64(seconds)
	}
}
