package server

import (
	"net/http"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/reward"
)

type rewardMessagePayload struct {
	Threshold string `json:"threshold"`
	Message   string `json:"message"`
}

type createCampaignPayload struct {
	Title          string                 `json:"title"`
	Subtitle       string                 `json:"subtitle"`
	Description    string                 `json:"description"`
	CoverImage     string                 `json:"cover_img"`
	PledgedMessage string                 `json:"pledged_message"`
	FundedMessage  string                 `json:"funded_message"`
	RewardMessages []rewardMessagePayload `json:"reward_messages"`
	Goal           string                 `json:"goal"`
	Deadline       uint64                 `json:"deadline"`
	Categories     []uint16               `json:"categories"`
	Variant        string                 `json:"variant"`
	Asset          string                 `json:"asset"`
	Reward         *reward.Config         `json:"reward"`
	Entropy        string                 `json:"entropy"`
	Funds          *fundsPayload          `json:"funds"`
}

func (p createCampaignPayload) toCharter() (charter.Charter, error) {
	goal, err := amount.Parse(p.Goal)
	if err != nil {
		return charter.Charter{}, err
	}
	variant := charter.Variant(strings.TrimSpace(p.Variant))
	if variant == "" {
		variant = charter.VariantCommission
	}
	messages := make([]charter.RewardMessage, 0, len(p.RewardMessages))
	for _, message := range p.RewardMessages {
		threshold, err := amount.Parse(message.Threshold)
		if err != nil {
			return charter.Charter{}, err
		}
		messages = append(messages, charter.RewardMessage{Threshold: threshold, Message: message.Message})
	}
	return charter.Charter{
		Title:          p.Title,
		Subtitle:       p.Subtitle,
		Description:    p.Description,
		CoverImage:     p.CoverImage,
		PledgedMessage: p.PledgedMessage,
		FundedMessage:  p.FundedMessage,
		RewardMessages: messages,
		Goal:           goal,
		Deadline:       p.Deadline,
		Categories:     p.Categories,
		Variant:        variant,
		Asset:          p.Asset,
		Reward:         p.Reward,
		Entropy:        p.Entropy,
	}, nil
}

type pledgeLimitPayload struct {
	Asset   string `json:"asset"`
	Minimum string `json:"minimum"`
	Maximum string `json:"maximum"`
}

type updateConfigPayload struct {
	Owner             *string               `json:"owner"`
	CampaignCodeID    *uint64               `json:"campaign_code_id"`
	CampaignCodeHash  *string               `json:"campaign_code_hash"`
	Deadman           *uint64               `json:"deadman"`
	CommissionNom     *string               `json:"commission_rate_nom"`
	CommissionDenom   *string               `json:"commission_rate_denom"`
	CommissionAddress *string               `json:"commission_addr"`
	DefaultAsset      *string               `json:"default_asset"`
	PledgeLimits      *[]pledgeLimitPayload `json:"pledge_limits"`
}

func parseOptionalAmount(raw *string) (*sdkmath.Uint, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := amount.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (p updateConfigPayload) toCommand() (registry.UpdateConfig, error) {
	nom, err := parseOptionalAmount(p.CommissionNom)
	if err != nil {
		return registry.UpdateConfig{}, err
	}
	denom, err := parseOptionalAmount(p.CommissionDenom)
	if err != nil {
		return registry.UpdateConfig{}, err
	}
	command := registry.UpdateConfig{
		Owner:             p.Owner,
		CampaignCodeID:    p.CampaignCodeID,
		CampaignCodeHash:  p.CampaignCodeHash,
		Deadman:           p.Deadman,
		CommissionNom:     nom,
		CommissionDenom:   denom,
		CommissionAddress: p.CommissionAddress,
		DefaultAsset:      p.DefaultAsset,
	}
	if p.PledgeLimits != nil {
		limits := make([]ledger.PledgeLimit, 0, len(*p.PledgeLimits))
		for _, limit := range *p.PledgeLimits {
			minimum, err := amount.ParseOrZero(limit.Minimum)
			if err != nil {
				return registry.UpdateConfig{}, err
			}
			maximum, err := amount.ParseOrZero(limit.Maximum)
			if err != nil {
				return registry.UpdateConfig{}, err
			}
			limits = append(limits, ledger.PledgeLimit{Asset: limit.Asset, Minimum: minimum, Maximum: maximum})
		}
		command.PledgeLimits = &limits
	}
	return command, nil
}

type signPermitPayload struct {
	Name        string   `json:"permit_name"`
	Permissions []string `json:"permissions"`
	Campaigns   []string `json:"allowed_campaigns"`
}

type revokePermitPayload struct {
	Name string `json:"permit_name"`
}

type registryConfigResponse struct {
	Address           string               `json:"address"`
	Owner             string               `json:"owner"`
	CampaignCodeID    uint64               `json:"campaign_code_id"`
	CampaignCodeHash  string               `json:"campaign_code_hash"`
	Deadman           uint64               `json:"deadman"`
	CommissionNom     sdkmath.Uint         `json:"commission_rate_nom"`
	CommissionDenom   sdkmath.Uint         `json:"commission_rate_denom"`
	CommissionAddress string               `json:"commission_addr"`
	DefaultAsset      string               `json:"default_asset"`
	PledgeLimits      []ledger.PledgeLimit `json:"pledge_limits"`
	CampaignCount     uint32               `json:"campaign_count"`
}

func (h *httpHandler) registryEnv(c *gin.Context, funds *hostenv.Funds) hostenv.Env {
	return hostenv.Env{
		Height:   h.height(),
		Sender:   c.GetString(identityContextKey),
		Contract: h.registryAddress,
		Funds:    funds,
	}
}

func (h *httpHandler) executeRegistry(c *gin.Context, env hostenv.Env, command registry.Command) {
	result, err := h.host.ExecuteRegistry(c.Request.Context(), env, command)
	h.respondResult(c, registry.Operation(command), result, err)
}

func (h *httpHandler) handleCreateCampaign(c *gin.Context) {
	var request createCampaignPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	terms, err := request.toCharter()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	funds, err := request.Funds.toFunds()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_funds"})
		return
	}
	h.executeRegistry(c, h.registryEnv(c, funds), registry.CreateCampaign{Terms: terms})
}

func (h *httpHandler) handleUpdateRegistryConfig(c *gin.Context) {
	var request updateConfigPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	command, err := request.toCommand()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	h.executeRegistry(c, h.registryEnv(c, nil), command)
}

func (h *httpHandler) handleRevokePermit(c *gin.Context) {
	var request revokePermitPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeRegistry(c, h.registryEnv(c, nil), registry.RevokePermit{Name: request.Name})
}

func (h *httpHandler) handleSignPermit(c *gin.Context) {
	var request signPermitPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	permit, err := h.permits.Sign(c.GetString(identityContextKey), request.Name, request.Permissions, request.Campaigns)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_permit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permit": permit})
}

func (h *httpHandler) handleRegistryConfig(c *gin.Context) {
	config, err := h.registry.Config(h.host.Store(), h.registryAddress)
	if err != nil {
		h.respondError(c, "registry.config", err)
		return
	}
	c.JSON(http.StatusOK, registryConfigResponse{
		Address:           config.Address,
		Owner:             config.Owner,
		CampaignCodeID:    config.CampaignCodeID,
		CampaignCodeHash:  config.CampaignCodeHash,
		Deadman:           config.Deadman,
		CommissionNom:     config.CommissionNom,
		CommissionDenom:   config.CommissionDenom,
		CommissionAddress: config.CommissionAddress,
		DefaultAsset:      config.DefaultAsset,
		PledgeLimits:      config.PledgeLimits,
		CampaignCount:     config.CampaignCount,
	})
}

func (h *httpHandler) handleListCampaigns(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	listing, err := h.registry.ListCampaigns(h.host.Store(), h.registryAddress, page, pageSize)
	if err != nil {
		h.respondError(c, "registry.list_campaigns", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
