package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
)

type fundsPayload struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (p *fundsPayload) toFunds() (*hostenv.Funds, error) {
	if p == nil {
		return nil, nil
	}
	value, err := amount.Parse(p.Amount)
	if err != nil {
		return nil, err
	}
	return &hostenv.Funds{Asset: strings.TrimSpace(p.Asset), Amount: value}, nil
}

type contributePayload struct {
	Funds     *fundsPayload `json:"funds"`
	Anonymous bool          `json:"anonymous"`
	Entropy   string        `json:"entropy"`
}

type claimPayload struct {
	Milestone int  `json:"milestone"`
	Creator   bool `json:"creator"`
}

type commentPayload struct {
	Text string `json:"text"`
}

type spamPayload struct {
	Flag bool `json:"flag"`
}

type changeTextPayload struct {
	Title          *string   `json:"title"`
	Subtitle       *string   `json:"subtitle"`
	Description    *string   `json:"description"`
	CoverImage     *string   `json:"cover_img"`
	PledgedMessage *string   `json:"pledged_message"`
	FundedMessage  *string   `json:"funded_message"`
	Categories     *[]uint16 `json:"categories"`
}

type generateKeyPayload struct {
	Entropy string `json:"entropy"`
}

type setKeyPayload struct {
	Key string `json:"key"`
}

type tokenAckPayload struct {
	RequestID string `json:"request_id"`
	Token     string `json:"token"`
}

func (h *httpHandler) campaignEnv(c *gin.Context, funds *hostenv.Funds) hostenv.Env {
	return hostenv.Env{
		Height:   h.height(),
		Sender:   c.GetString(identityContextKey),
		Contract: c.Param("address"),
		Funds:    funds,
	}
}

func (h *httpHandler) executeCampaign(c *gin.Context, env hostenv.Env, command campaign.Command) {
	result, err := h.host.ExecuteCampaign(c.Request.Context(), env, command)
	h.respondResult(c, campaign.Operation(command), result, err)
}

func (h *httpHandler) handleContribute(c *gin.Context) {
	var request contributePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	funds, err := request.Funds.toFunds()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_funds"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, funds), campaign.Contribute{Anonymous: request.Anonymous, Entropy: request.Entropy})
}

func (h *httpHandler) handleRefund(c *gin.Context) {
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.Refund{})
}

func (h *httpHandler) handleCancel(c *gin.Context) {
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.Cancel{})
}

func (h *httpHandler) handlePayOut(c *gin.Context) {
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.PayOut{})
}

func (h *httpHandler) handleClaimReward(c *gin.Context) {
	var request claimPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Milestone < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.ClaimReward{Milestone: request.Milestone, Creator: request.Creator})
}

func (h *httpHandler) handleComment(c *gin.Context) {
	var request commentPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.Comment{Text: request.Text})
}

func (h *httpHandler) handleFlagSpam(c *gin.Context) {
	var request spamPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.FlagSpam{Flag: request.Flag})
}

func (h *httpHandler) handleChangeText(c *gin.Context) {
	var request changeTextPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.ChangeText{
		Title:          request.Title,
		Subtitle:       request.Subtitle,
		Description:    request.Description,
		CoverImage:     request.CoverImage,
		PledgedMessage: request.PledgedMessage,
		FundedMessage:  request.FundedMessage,
		Categories:     request.Categories,
	})
}

func (h *httpHandler) handleGenerateViewingKey(c *gin.Context) {
	var request generateKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.GenerateViewingKey{Entropy: request.Entropy})
}

func (h *httpHandler) handleSetViewingKey(c *gin.Context) {
	var request setKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.SetViewingKey{Key: request.Key})
}

// handleAcknowledgeToken accepts reward token acknowledgements from the registry owner,
// who runs the token issuance collaborator.
func (h *httpHandler) handleAcknowledgeToken(c *gin.Context) {
	var request tokenAckPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RequestID) == "" || strings.TrimSpace(request.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	config, err := h.registry.Config(h.host.Store(), h.registryAddress)
	if err != nil {
		h.respondError(c, "campaign.acknowledge_token", err)
		return
	}
	if c.GetString(identityContextKey) != config.Owner {
		c.JSON(http.StatusForbidden, gin.H{"error": "campaign.acknowledge_token.sender_not_operator"})
		return
	}
	h.executeCampaign(c, h.campaignEnv(c, nil), campaign.AcknowledgeToken{RequestID: request.RequestID, Token: request.Token})
}

func (h *httpHandler) handleCampaignStatus(c *gin.Context) {
	summary, err := h.campaigns.Status(h.host.Store(), c.Param("address"), h.height())
	if err != nil {
		h.respondError(c, "campaign.query_status", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleCampaignStatusAuth(c *gin.Context) {
	viewer := strings.TrimSpace(c.Query("viewer"))
	key := strings.TrimSpace(c.GetHeader(viewingKeyHeader))
	if viewer == "" || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	summary, err := h.campaigns.StatusAuth(h.host.Store(), c.Param("address"), viewer, key, h.height())
	if err != nil {
		h.respondError(c, "campaign.query_status_auth", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleCampaignStatusPermit(c *gin.Context) {
	permit := strings.TrimSpace(c.GetHeader(permitHeader))
	if permit == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	address := c.Param("address")
	viewer, err := h.registry.ValidatePermit(h.host.Store(), h.registryAddress, permit, address)
	if err != nil {
		h.respondError(c, "campaign.query_status_permit", err)
		return
	}
	summary, err := h.campaigns.StatusForViewer(h.host.Store(), address, viewer, h.height())
	if err != nil {
		h.respondError(c, "campaign.query_status_permit", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	comments, err := h.campaigns.Comments(h.host.Store(), c.Param("address"), page, pageSize)
	if err != nil {
		h.respondError(c, "campaign.query_comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *httpHandler) handleListContributors(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	contributors, err := h.campaigns.Contributors(h.host.Store(), c.Param("address"), page, pageSize)
	if err != nil {
		h.respondError(c, "campaign.query_contributors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributors": contributors})
}

func (h *httpHandler) handleCampaignEvents(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), c.Param("address"))
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, message)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			c.Writer.Flush()
		}
	}
}
