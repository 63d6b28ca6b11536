package campaign

import (
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
)

// Command is a state-changing call addressed to a campaign. The set is closed.
type Command interface {
	operation() string
}

// Instantiate creates the campaign at the receiving address. Only the registry named in
// the charter may send it.
type Instantiate struct {
	Charter  charter.Charter
	CodeHash string
}

// ChangeText updates presentation fields. Nil fields are left unchanged.
type ChangeText struct {
	Title          *string
	Subtitle       *string
	Description    *string
	CoverImage     *string
	PledgedMessage *string
	FundedMessage  *string
	Categories     *[]uint16
}

// Contribute pledges the funds attached to the call.
type Contribute struct {
	Anonymous bool
	Entropy   string
}

// Refund returns the sender's whole contribution.
type Refund struct{}

// Cancel expires a fundraising campaign early.
type Cancel struct{}

// PayOut releases the raised funds to the creator.
type PayOut struct{}

// ClaimReward claims one vesting milestone. Creator selects the creator allocation.
type ClaimReward struct {
	Milestone int
	Creator   bool
}

// Comment appends a comment.
type Comment struct {
	Text string
}

// FlagSpam sets or clears the sender's spam flag.
type FlagSpam struct {
	Flag bool
}

// GenerateViewingKey derives a fresh viewing key for the sender.
type GenerateViewingKey struct {
	Entropy string
}

// SetViewingKey stores a caller-chosen viewing key.
type SetViewingKey struct {
	Key string
}

// AcknowledgeToken delivers the identity of an issued reward token.
type AcknowledgeToken struct {
	RequestID string
	Token     string
}

func (Instantiate) operation() string        { return opInstantiate }
func (ChangeText) operation() string         { return opChangeText }
func (Contribute) operation() string         { return opContribute }
func (Refund) operation() string             { return opRefund }
func (Cancel) operation() string             { return opCancel }
func (PayOut) operation() string             { return opPayOut }
func (ClaimReward) operation() string        { return opClaimReward }
func (Comment) operation() string            { return opComment }
func (FlagSpam) operation() string           { return opFlagSpam }
func (GenerateViewingKey) operation() string { return opGenerateViewingKey }
func (SetViewingKey) operation() string      { return opSetViewingKey }
func (AcknowledgeToken) operation() string   { return opAcknowledgeToken }

// Operation returns the operation name used in logs, metrics and error codes.
func Operation(command Command) string {
	if command == nil {
		return "campaign.unknown"
	}
	return command.operation()
}
