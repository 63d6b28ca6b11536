package config

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
)

const (
	envPrefix                 = "PLEDGE"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "pledge.db"
	defaultLogLevel           = "info"
	defaultAuthIssuer         = "pledge-api"
	defaultCookieName         = "pledge_session"
	defaultRegistryAddress    = "registry1"
	defaultCampaignCodeID     = 1
	defaultDeadman            = 100_800
	defaultCommissionNom      = "0"
	defaultCommissionDenom    = "1"
	defaultCampaignDenom      = "uscrt"
	defaultSweepInterval      = time.Minute
	defaultRateLimitPerSecond = 5.0
	defaultRateBurst          = 10
	defaultPermitTTL          = 24 * time.Hour
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	LogFile       string
	SigningSecret string
	Issuer        string
	CookieName    string
	PermitTTL     time.Duration
	Registry      RegistryConfig
	SweepInterval time.Duration
	RateLimit     float64
	RateBurst     int
}

// RegistryConfig seeds the registry on first start.
type RegistryConfig struct {
	Address           string
	Owner             string
	CampaignCodeID    uint64
	CampaignCodeHash  string
	Deadman           uint64
	CommissionNom     sdkmath.Uint
	CommissionDenom   sdkmath.Uint
	CommissionAddress string
	DefaultAsset      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.permit_ttl", defaultPermitTTL)
	configViper.SetDefault("registry.address", defaultRegistryAddress)
	configViper.SetDefault("registry.campaign_code_id", defaultCampaignCodeID)
	configViper.SetDefault("registry.campaign_code_hash", "")
	configViper.SetDefault("registry.deadman", defaultDeadman)
	configViper.SetDefault("registry.commission_nom", defaultCommissionNom)
	configViper.SetDefault("registry.commission_denom", defaultCommissionDenom)
	configViper.SetDefault("registry.commission_address", "")
	configViper.SetDefault("campaign.denom", defaultCampaignDenom)
	configViper.SetDefault("scheduler.sweep_interval", defaultSweepInterval)
	configViper.SetDefault("server.rate_limit", defaultRateLimitPerSecond)
	configViper.SetDefault("server.rate_burst", defaultRateBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	commissionNom, err := amount.Parse(configViper.GetString("registry.commission_nom"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("registry.commission_nom: %w", err)
	}
	commissionDenom, err := amount.Parse(configViper.GetString("registry.commission_denom"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("registry.commission_denom: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		LogFile:       configViper.GetString("log.file"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		Issuer:        configViper.GetString("auth.issuer"),
		CookieName:    configViper.GetString("auth.cookie_name"),
		PermitTTL:     configViper.GetDuration("auth.permit_ttl"),
		Registry: RegistryConfig{
			Address:           configViper.GetString("registry.address"),
			Owner:             configViper.GetString("registry.owner"),
			CampaignCodeID:    configViper.GetUint64("registry.campaign_code_id"),
			CampaignCodeHash:  configViper.GetString("registry.campaign_code_hash"),
			Deadman:           configViper.GetUint64("registry.deadman"),
			CommissionNom:     commissionNom,
			CommissionDenom:   commissionDenom,
			CommissionAddress: configViper.GetString("registry.commission_address"),
			DefaultAsset:      configViper.GetString("campaign.denom"),
		},
		SweepInterval: configViper.GetDuration("scheduler.sweep_interval"),
		RateLimit:     configViper.GetFloat64("server.rate_limit"),
		RateBurst:     configViper.GetInt("server.rate_burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Registry.Address) == "" {
		return fmt.Errorf("registry.address is required")
	}
	if strings.TrimSpace(c.Registry.Owner) == "" {
		return fmt.Errorf("registry.owner is required")
	}
	if !c.Registry.CommissionNom.IsZero() {
		if c.Registry.CommissionDenom.IsZero() {
			return fmt.Errorf("registry.commission_denom must be greater than 0")
		}
		if strings.TrimSpace(c.Registry.CommissionAddress) == "" {
			return fmt.Errorf("registry.commission_address is required when a commission is charged")
		}
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be positive")
	}
	return nil
}
