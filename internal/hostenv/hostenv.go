// Package hostenv defines what the host execution environment hands to the core on every
// call and what the core hands back: the caller environment, outbound instructions and
// the status/message result envelope.
package hostenv

import (
	sdkmath "cosmossdk.io/math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
)

// Env describes a single inbound call.
type Env struct {
	// Height is the opaque, monotonically non-decreasing time counter supplied by the host.
	Height uint64
	// Sender is the authenticated identity that issued the call.
	Sender string
	// Contract is the identity of the contract receiving the call.
	Contract string
	// Funds holds value attached to the call, if any.
	Funds *Funds
}

// Funds is value attached to a call. Asset is a bank denomination or a token contract address.
type Funds struct {
	Asset  string
	Amount sdkmath.Uint
}

// ResponseStatus reports whether a state-changing call took effect.
type ResponseStatus string

const (
	// StatusSuccess indicates the mutation was applied.
	StatusSuccess ResponseStatus = "success"
	// StatusFailure indicates a business rule prevented the mutation.
	StatusFailure ResponseStatus = "failure"
)

// Result is the caller-visible outcome of a call.
type Result struct {
	Status       ResponseStatus
	Message      string
	Instructions []Instruction
	Data         map[string]any
}

// Success builds a successful result.
func Success(message string, instructions ...Instruction) Result {
	return Result{Status: StatusSuccess, Message: message, Instructions: instructions}
}

// Failure builds a failed result; instructions are only used to hand back attached funds.
func Failure(message string, instructions ...Instruction) Result {
	return Result{Status: StatusFailure, Message: message, Instructions: instructions}
}

// WithData attaches a response payload value.
func (r Result) WithData(key string, value any) Result {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}

// Succeeded reports whether the result status is success.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Instruction is an outbound, fire-and-forget instruction executed by the host after the
// emitting call. The set is closed.
type Instruction interface {
	Kind() string
	isInstruction()
}

// BankTransfer moves native coins out of a contract.
type BankTransfer struct {
	From   string
	To     string
	Denom  string
	Amount sdkmath.Uint
}

// TokenTransfer moves fungible tokens held by a contract.
type TokenTransfer struct {
	Token  string
	From   string
	To     string
	Amount sdkmath.Uint
}

// InstantiateCampaign asks the host to spawn a campaign from the registered template.
type InstantiateCampaign struct {
	CodeID   uint64
	CodeHash string
	Label    string
	Address  string
	Init     charter.Charter
}

// RegisterCampaign is the one-shot handshake a new campaign sends to its registry.
type RegisterCampaign struct {
	Registry string
	Address  string
	CodeHash string
}

// InstantiateToken asks the token-issuing collaborator to create the reward token.
type InstantiateToken struct {
	RequestID      string
	Campaign       string
	CodeID         uint64
	CodeHash       string
	Name           string
	Symbol         string
	Decimals       uint8
	Admin          string
	InitialHolder  string
	InitialBalance sdkmath.Uint
	Features       TokenFeatures
}

// TokenFeatures are the feature flags of an issued token.
type TokenFeatures struct {
	PublicTotalSupply bool
	EnableDeposit     bool
	EnableRedeem      bool
	EnableMint        bool
	EnableBurn        bool
}

func (BankTransfer) Kind() string        { return "bank_transfer" }
func (TokenTransfer) Kind() string       { return "token_transfer" }
func (InstantiateCampaign) Kind() string { return "instantiate_campaign" }
func (RegisterCampaign) Kind() string    { return "register_campaign" }
func (InstantiateToken) Kind() string    { return "instantiate_token" }

func (BankTransfer) isInstruction()        {}
func (TokenTransfer) isInstruction()       {}
func (InstantiateCampaign) isInstruction() {}
func (RegisterCampaign) isInstruction()    {}
func (InstantiateToken) isInstruction()    {}
