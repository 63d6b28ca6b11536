package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PermissionStatus lets the bearer read identity-scoped campaign status.
const PermissionStatus = "status"

const defaultPermitTTL = 24 * time.Hour

var (
	ErrMissingPermitRegistry = errors.New("permit authority: registry required")
	ErrInvalidPermit         = errors.New("permit authority: invalid permit")
	ErrPermitScope           = errors.New("permit authority: permit does not cover request")
)

// PermitClaims is the payload of a permit. Subject is the owner and the audience is the
// registry that vouches for the permit.
type PermitClaims struct {
	Name             string   `json:"permit_name"`
	Permissions      []string `json:"permissions"`
	AllowedCampaigns []string `json:"allowed_campaigns,omitempty"`
	jwt.RegisteredClaims
}

// Owner returns the identity the permit speaks for.
func (c PermitClaims) Owner() string {
	return c.Subject
}

// Allows reports whether the permit grants permission on campaign. An empty campaign
// list covers every campaign of the registry.
func (c PermitClaims) Allows(campaign, permission string) bool {
	if !slices.Contains(c.Permissions, permission) {
		return false
	}
	return len(c.AllowedCampaigns) == 0 || slices.Contains(c.AllowedCampaigns, campaign)
}

// PermitAuthorityConfig configures permit signing and verification for one registry.
type PermitAuthorityConfig struct {
	SigningSecret []byte
	Registry      string
	PermitTTL     time.Duration
	Clock         func() time.Time
}

// PermitAuthority signs and verifies registry permits. Revocation is tracked by the
// registry ledger, not here.
type PermitAuthority struct {
	signingSecret []byte
	registry      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewPermitAuthority constructs a PermitAuthority.
func NewPermitAuthority(cfg PermitAuthorityConfig) (*PermitAuthority, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	registry := strings.TrimSpace(cfg.Registry)
	if registry == "" {
		return nil, ErrMissingPermitRegistry
	}
	ttl := cfg.PermitTTL
	if ttl <= 0 {
		ttl = defaultPermitTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PermitAuthority{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		registry:      registry,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Registry returns the registry address permits are issued for.
func (a *PermitAuthority) Registry() string {
	return a.registry
}

// Sign issues a named permit for owner.
func (a *PermitAuthority) Sign(owner, name string, permissions, campaigns []string) (string, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" || len(permissions) == 0 {
		return "", fmt.Errorf("%w: owner, name and permissions are required", ErrInvalidPermit)
	}
	now := a.clock().UTC()
	claims := PermitClaims{
		Name:             name,
		Permissions:      append([]string(nil), permissions...),
		AllowedCampaigns: append([]string(nil), campaigns...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			Issuer:    a.registry,
			Audience:  []string{a.registry},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingSecret)
	if err != nil {
		return "", fmt.Errorf("sign permit: %w", err)
	}
	return signed, nil
}

// Verify checks the permit signature, audience and lifetime and returns its claims.
func (a *PermitAuthority) Verify(permit string) (PermitClaims, error) {
	permit = strings.TrimSpace(permit)
	if permit == "" {
		return PermitClaims{}, ErrInvalidPermit
	}
	claims := &PermitClaims{}
	parsed, err := jwt.ParseWithClaims(
		permit,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return a.signingSecret, nil
		},
		jwt.WithTimeFunc(a.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(a.registry),
		jwt.WithIssuer(a.registry),
	)
	if err != nil {
		return PermitClaims{}, fmt.Errorf("%w: %v", ErrInvalidPermit, err)
	}
	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.Name == "" {
		return PermitClaims{}, ErrInvalidPermit
	}
	return *claims, nil
}
