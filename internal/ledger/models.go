// Package ledger persists campaign and registry state through gorm.
package ledger

import (
	sdkmath "cosmossdk.io/math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	// StatusFundraising accepts contributions until the deadline.
	StatusFundraising Status = "fundraising"
	// StatusExpired is terminal: the goal was not met or the creator cancelled.
	StatusExpired Status = "expired"
	// StatusSuccessful means the goal was met before the deadline.
	StatusSuccessful Status = "successful"
)

// Campaign is the persisted state of one campaign.
type Campaign struct {
	Address           string                  `gorm:"column:address;primaryKey;size:190;not null"`
	CodeHash          string                  `gorm:"column:code_hash;size:190;not null;default:''"`
	Registry          string                  `gorm:"column:registry;size:190;not null;index"`
	RegistryCodeHash  string                  `gorm:"column:registry_code_hash;size:190;not null;default:''"`
	Creator           string                  `gorm:"column:creator;size:190;not null;index"`
	Title             string                  `gorm:"column:title;not null"`
	Subtitle          string                  `gorm:"column:subtitle;not null;default:''"`
	Description       string                  `gorm:"column:description;type:text;not null;default:''"`
	CoverImage        string                  `gorm:"column:cover_image;not null;default:''"`
	PledgedMessage    string                  `gorm:"column:pledged_message;type:text;not null;default:''"`
	FundedMessage     string                  `gorm:"column:funded_message;type:text;not null;default:''"`
	RewardMessages    []charter.RewardMessage `gorm:"column:reward_messages;type:text;serializer:json"`
	Goal              sdkmath.Uint            `gorm:"column:goal;type:text;serializer:amount;not null"`
	Deadline          uint64                  `gorm:"column:deadline;not null;index"`
	Deadman           uint64                  `gorm:"column:deadman;not null"`
	Categories        []uint16                `gorm:"column:categories;type:text;serializer:json"`
	Status            Status                  `gorm:"column:status;size:32;not null;index"`
	PaidOut           bool                    `gorm:"column:paid_out;not null;default:false"`
	Total             sdkmath.Uint            `gorm:"column:total;type:text;serializer:amount;not null"`
	FunderCount       uint32                  `gorm:"column:funder_count;not null;default:0"`
	CommentCount      uint32                  `gorm:"column:comment_count;not null;default:0"`
	SpamCount         uint32                  `gorm:"column:spam_count;not null;default:0"`
	Variant           charter.Variant         `gorm:"column:variant;size:32;not null"`
	Asset             string                  `gorm:"column:asset;size:190;not null"`
	MinimumPledge     sdkmath.Uint            `gorm:"column:minimum_pledge;type:text;serializer:amount;not null"`
	MaximumPledge     sdkmath.Uint            `gorm:"column:maximum_pledge;type:text;serializer:amount;not null"`
	CommissionNom     sdkmath.Uint            `gorm:"column:commission_nom;type:text;serializer:amount;not null"`
	CommissionDenom   sdkmath.Uint            `gorm:"column:commission_denom;type:text;serializer:amount;not null"`
	Upfront           sdkmath.Uint            `gorm:"column:upfront;type:text;serializer:amount;not null"`
	CommissionAddress string                  `gorm:"column:commission_address;size:190;not null;default:''"`
	Reward            *reward.Config          `gorm:"column:reward;type:text;serializer:json"`
	RewardToken       string                  `gorm:"column:reward_token;size:190;not null;default:''"`
	TotalRaised       sdkmath.Uint            `gorm:"column:total_raised;type:text;serializer:amount;not null"`
	CreatedHeight     uint64                  `gorm:"column:created_height;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Campaign) TableName() string {
	return "campaigns"
}

// Funder is one contributor of a campaign. RewardClaimed is a 0/1 bit-vector of vesting
// milestones already claimed.
type Funder struct {
	CampaignAddress string       `gorm:"column:campaign_address;primaryKey;size:190;not null"`
	Address         string       `gorm:"column:address;primaryKey;size:190;not null"`
	Idx             uint32       `gorm:"column:idx;not null;index:idx_funders_campaign_idx"`
	Anonymous       bool         `gorm:"column:anonymous;not null;default:false"`
	Amount          sdkmath.Uint `gorm:"column:amount;type:text;serializer:amount;not null"`
	RewardClaimed   string       `gorm:"column:reward_claimed;size:64;not null;default:'0'"`
}

// TableName provides the explicit table binding for GORM.
func (Funder) TableName() string {
	return "campaign_funders"
}

// CreatorClaim tracks claimed creator milestones per beneficiary.
type CreatorClaim struct {
	CampaignAddress string `gorm:"column:campaign_address;primaryKey;size:190;not null"`
	Beneficiary     string `gorm:"column:beneficiary;primaryKey;size:190;not null"`
	Claimed         string `gorm:"column:claimed;size:64;not null;default:'0'"`
}

// TableName provides the explicit table binding for GORM.
func (CreatorClaim) TableName() string {
	return "campaign_creator_claims"
}

// Comment is one entry of the append-only comment log.
type Comment struct {
	CampaignAddress string `gorm:"column:campaign_address;primaryKey;size:190;not null"`
	Idx             uint32 `gorm:"column:idx;primaryKey;not null"`
	Author          string `gorm:"column:author;size:190;not null"`
	Text            string `gorm:"column:text;type:text;not null"`
	Height          uint64 `gorm:"column:height;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "campaign_comments"
}

// SpamFlag records whether an address currently flags a campaign.
type SpamFlag struct {
	CampaignAddress string `gorm:"column:campaign_address;primaryKey;size:190;not null"`
	Address         string `gorm:"column:address;primaryKey;size:190;not null"`
	Flagged         bool   `gorm:"column:flagged;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (SpamFlag) TableName() string {
	return "campaign_spam_flags"
}

// ViewingKey stores the hash of a per-campaign viewing key.
type ViewingKey struct {
	CampaignAddress string `gorm:"column:campaign_address;primaryKey;size:190;not null"`
	Address         string `gorm:"column:address;primaryKey;size:190;not null"`
	KeyHash         string `gorm:"column:key_hash;size:128;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ViewingKey) TableName() string {
	return "campaign_viewing_keys"
}

// PendingTokenRequest correlates an asynchronous token issuance with its campaign.
type PendingTokenRequest struct {
	RequestID       string `gorm:"column:request_id;primaryKey;size:64;not null"`
	CampaignAddress string `gorm:"column:campaign_address;size:190;not null;index"`
	TokenAddress    string `gorm:"column:token_address;size:190;not null;default:''"`
	Resolved        bool   `gorm:"column:resolved;not null;default:false"`
	CreatedHeight   uint64 `gorm:"column:created_height;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PendingTokenRequest) TableName() string {
	return "pending_token_requests"
}

// PledgeLimit bounds pledges made in one asset.
type PledgeLimit struct {
	Asset   string       `json:"asset"`
	Minimum sdkmath.Uint `json:"minimum"`
	Maximum sdkmath.Uint `json:"maximum"`
}

// RegistryConfig is the configuration and coordination state of one registry.
type RegistryConfig struct {
	Address           string        `gorm:"column:address;primaryKey;size:190;not null"`
	CodeHash          string        `gorm:"column:code_hash;size:190;not null;default:''"`
	Owner             string        `gorm:"column:owner;size:190;not null"`
	CampaignCodeID    uint64        `gorm:"column:campaign_code_id;not null"`
	CampaignCodeHash  string        `gorm:"column:campaign_code_hash;size:190;not null"`
	Deadman           uint64        `gorm:"column:deadman;not null"`
	CommissionNom     sdkmath.Uint  `gorm:"column:commission_nom;type:text;serializer:amount;not null"`
	CommissionDenom   sdkmath.Uint  `gorm:"column:commission_denom;type:text;serializer:amount;not null"`
	CommissionAddress string        `gorm:"column:commission_address;size:190;not null;default:''"`
	DefaultAsset      string        `gorm:"column:default_asset;size:190;not null;default:''"`
	PledgeLimits      []PledgeLimit `gorm:"column:pledge_limits;type:text;serializer:json"`
	Creating          bool          `gorm:"column:creating;not null;default:false"`
	CampaignCount     uint32        `gorm:"column:campaign_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (RegistryConfig) TableName() string {
	return "registry_configs"
}

// PledgeLimitFor returns the configured limit for an asset.
func (c RegistryConfig) PledgeLimitFor(asset string) (PledgeLimit, bool) {
	for _, limit := range c.PledgeLimits {
		if limit.Asset == asset {
			return limit, true
		}
	}
	return PledgeLimit{}, false
}

// RegistryEntry is one registered campaign.
type RegistryEntry struct {
	Registry        string `gorm:"column:registry;primaryKey;size:190;not null"`
	ID              uint32 `gorm:"column:id;primaryKey;autoIncrement:false;not null"`
	CampaignAddress string `gorm:"column:campaign_address;size:190;not null;index"`
	CodeHash        string `gorm:"column:code_hash;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (RegistryEntry) TableName() string {
	return "registry_entries"
}

// RevokedPermit blocks a named permit of an owner.
type RevokedPermit struct {
	Registry string `gorm:"column:registry;primaryKey;size:190;not null"`
	Owner    string `gorm:"column:owner;primaryKey;size:190;not null"`
	Name     string `gorm:"column:name;primaryKey;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RevokedPermit) TableName() string {
	return "revoked_permits"
}

// OutboxEntry is an executed outbound instruction awaiting the external collaborators.
type OutboxEntry struct {
	Sequence         uint64 `gorm:"column:sequence;primaryKey;autoIncrement"`
	Kind             string `gorm:"column:kind;size:64;not null;index"`
	Source           string `gorm:"column:source;size:190;not null"`
	Height           uint64 `gorm:"column:height;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OutboxEntry) TableName() string {
	return "outbox"
}

// Models lists every model for schema migration.
func Models() []any {
	return []any{
		&Campaign{},
		&Funder{},
		&CreatorClaim{},
		&Comment{},
		&SpamFlag{},
		&ViewingKey{},
		&PendingTokenRequest{},
		&RegistryConfig{},
		&RegistryEntry{},
		&RevokedPermit{},
		&OutboxEntry{},
	}
}
