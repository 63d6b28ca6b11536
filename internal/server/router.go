package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/host"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
)

const (
	identityContextKey       = "pledge_identity"
	defaultPageSize          = 10
	defaultHeartbeatInterval = 15 * time.Second
	viewingKeyHeader         = "X-Viewing-Key"
	permitHeader             = "X-Permit"
)

var (
	errMissingHost          = errors.New("host dependency required")
	errMissingCampaigns     = errors.New("campaign service dependency required")
	errMissingRegistry      = errors.New("registry service dependency required")
	errMissingSessions      = errors.New("session validator dependency required")
	errMissingPermitSigner  = errors.New("permit signer dependency required")
	errMissingRegistryAddr  = errors.New("registry address required")
	errMissingHeightSource  = errors.New("height source dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type PermitSigner interface {
	Sign(owner, name string, permissions, campaigns []string) (string, error)
}

type Dependencies struct {
	Host              *host.Host
	Campaigns         *campaign.Service
	Registry          *registry.Service
	Sessions          SessionValidator
	Permits           PermitSigner
	RegistryAddress   string
	Height            func() uint64
	Realtime          *RealtimeDispatcher
	RateLimit         rate.Limit
	RateBurst         int
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Host == nil {
		return nil, errMissingHost
	}
	if deps.Campaigns == nil {
		return nil, errMissingCampaigns
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Permits == nil {
		return nil, errMissingPermitSigner
	}
	if strings.TrimSpace(deps.RegistryAddress) == "" {
		return nil, errMissingRegistryAddr
	}
	if deps.Height == nil {
		return nil, errMissingHeightSource
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		host:              deps.Host,
		campaigns:         deps.Campaigns,
		registry:          deps.Registry,
		sessions:          deps.Sessions,
		permits:           deps.Permits,
		registryAddress:   deps.RegistryAddress,
		height:            deps.Height,
		realtime:          realtime,
		limiter:           newSenderLimiter(deps.RateLimit, deps.RateBurst),
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/registry/config", handler.handleRegistryConfig)
	router.GET("/registry/campaigns", handler.handleListCampaigns)
	router.GET("/campaigns/:address", handler.handleCampaignStatus)
	router.GET("/campaigns/:address/status-auth", handler.handleCampaignStatusAuth)
	router.GET("/campaigns/:address/status-permit", handler.handleCampaignStatusPermit)
	router.GET("/campaigns/:address/comments", handler.handleListComments)
	router.GET("/campaigns/:address/contributors", handler.handleListContributors)
	router.GET("/campaigns/:address/events", handler.handleCampaignEvents)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest, handler.limitRequest)
	protected.POST("/registry/campaigns", handler.handleCreateCampaign)
	protected.POST("/registry/config", handler.handleUpdateRegistryConfig)
	protected.POST("/registry/permits", handler.handleSignPermit)
	protected.POST("/registry/permits/revoke", handler.handleRevokePermit)
	protected.POST("/campaigns/:address/contribute", handler.handleContribute)
	protected.POST("/campaigns/:address/refund", handler.handleRefund)
	protected.POST("/campaigns/:address/cancel", handler.handleCancel)
	protected.POST("/campaigns/:address/payout", handler.handlePayOut)
	protected.POST("/campaigns/:address/claim", handler.handleClaimReward)
	protected.POST("/campaigns/:address/comments", handler.handleComment)
	protected.POST("/campaigns/:address/spam", handler.handleFlagSpam)
	protected.POST("/campaigns/:address/text", handler.handleChangeText)
	protected.POST("/campaigns/:address/viewing-key", handler.handleGenerateViewingKey)
	protected.POST("/campaigns/:address/viewing-key/set", handler.handleSetViewingKey)
	protected.POST("/campaigns/:address/token-ack", handler.handleAcknowledgeToken)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", viewingKeyHeader, permitHeader},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	host              *host.Host
	campaigns         *campaign.Service
	registry          *registry.Service
	sessions          SessionValidator
	permits           PermitSigner
	registryAddress   string
	height            func() uint64
	realtime          *RealtimeDispatcher
	limiter           *senderLimiter
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSessionToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, claims.Identity)
	c.Next()
}

func (h *httpHandler) limitRequest(c *gin.Context) {
	identity := c.GetString(identityContextKey)
	if !h.limiter.Allow(identity) {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}

func pageParams(c *gin.Context) (uint32, uint32, bool) {
	page, err := parseUint32(c.Query("page"), 0)
	if err != nil {
		return 0, 0, false
	}
	pageSize, err := parseUint32(c.Query("page_size"), defaultPageSize)
	if err != nil || pageSize == 0 {
		return 0, 0, false
	}
	return page, pageSize, true
}

func parseUint32(raw string, fallback uint32) (uint32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(value), nil
}
