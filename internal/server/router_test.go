package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/host"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
)

const (
	testSigningSecret = "server-secret"
	testIssuer        = "pledge-api"
	testRegistry      = "registry-1"
	testOwner         = "operator"
	testDenom         = "uscrt"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	issuer  *auth.TokenIssuer
	height  uint64
}

func newTestServer(t *testing.T, limit rate.Limit, burst int) *testServer {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(ledger.Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	store, err := ledger.NewStore(database)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	campaigns, err := campaign.NewService(campaign.ServiceConfig{ViewingKeys: auth.NewViewingKeys()})
	if err != nil {
		t.Fatalf("failed to build campaign service: %v", err)
	}
	permits, err := auth.NewPermitAuthority(auth.PermitAuthorityConfig{SigningSecret: []byte(testSigningSecret), Registry: testRegistry})
	if err != nil {
		t.Fatalf("failed to build permit authority: %v", err)
	}
	registries, err := registry.NewService(registry.ServiceConfig{Permits: permits})
	if err != nil {
		t.Fatalf("failed to build registry service: %v", err)
	}
	if err := registries.Bootstrap(store, ledger.RegistryConfig{
		Address:          testRegistry,
		Owner:            testOwner,
		CampaignCodeID:   1,
		CampaignCodeHash: "campaign-hash",
		Deadman:          10,
		CommissionNom:    amount.Zero(),
		CommissionDenom:  amount.New(1),
		DefaultAsset:     testDenom,
	}); err != nil {
		t.Fatalf("failed to bootstrap registry: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	executor, err := host.New(host.Config{Store: store, Campaigns: campaigns, Registry: registries, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to build host: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), Issuer: testIssuer})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret), Issuer: testIssuer})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	server := &testServer{t: t, issuer: issuer, height: 1}
	handler, err := NewHTTPHandler(Dependencies{
		Host:            executor,
		Campaigns:       campaigns,
		Registry:        registries,
		Sessions:        sessions,
		Permits:         permits,
		RegistryAddress: testRegistry,
		Height:          func() uint64 { return server.height },
		Realtime:        dispatcher,
		RateLimit:       limit,
		RateBurst:       burst,
		Logger:          zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server.handler = handler
	return server
}

func (s *testServer) do(method, path, identity string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if identity != "" {
		token, _, err := s.issuer.IssueSessionToken(identity)
		if err != nil {
			s.t.Fatalf("failed to issue token: %v", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)

	decoded := map[string]any{}
	if strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			s.t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, decoded
}

func (s *testServer) createCampaign(creator string) string {
	s.t.Helper()
	recorder, body := s.do(http.MethodPost, "/registry/campaigns", creator, map[string]any{
		"title":           "Community garden",
		"goal":            "1000",
		"deadline":        20,
		"pledged_message": "thank you",
	}, nil)
	if recorder.Code != http.StatusOK {
		s.t.Fatalf("create campaign failed: %d %s", recorder.Code, recorder.Body.String())
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		s.t.Fatalf("expected data in response, got %v", body)
	}
	return data["address"].(string)
}

func TestCommandsRequireSession(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	recorder, body := server.do(http.MethodPost, "/registry/campaigns", "", map[string]any{"title": "x"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
	if body["error"] != errInvalidAuthorization.Error() {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	address := server.createCampaign("creator")

	server.height = 5
	recorder, body := server.do(http.MethodPost, "/campaigns/"+address+"/contribute", "alice", map[string]any{
		"funds":   map[string]any{"asset": testDenom, "amount": "1200"},
		"entropy": "alice-entropy",
	}, nil)
	if recorder.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("contribution failed: %d %s", recorder.Code, recorder.Body.String())
	}
	key, _ := body["data"].(map[string]any)["key"].(string)
	if key == "" {
		t.Fatalf("expected first contribution to issue a viewing key: %v", body)
	}

	recorder, body = server.do(http.MethodGet, "/campaigns/"+address, "", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status query failed: %d", recorder.Code)
	}
	if body["status"] != string(ledger.StatusSuccessful) || body["total"] != "1200" {
		t.Fatalf("unexpected summary %v", body)
	}

	recorder, body = server.do(http.MethodGet, "/campaigns/"+address+"/status-auth?viewer=alice", "", nil, map[string]string{viewingKeyHeader: key})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status-auth failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if body["pledged_message"] != "thank you" || body["contribution"] != "1200" {
		t.Fatalf("unexpected viewer summary %v", body)
	}

	recorder, _ = server.do(http.MethodGet, "/campaigns/"+address+"/status-auth?viewer=alice", "", nil, map[string]string{viewingKeyHeader: "api_key_wrong"})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for a wrong key, got %d", recorder.Code)
	}

	recorder, body = server.do(http.MethodGet, "/campaigns/"+address+"/contributors?page=0&page_size=5", "", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("contributors failed: %d", recorder.Code)
	}
	if contributors := body["contributors"].([]any); len(contributors) != 1 {
		t.Fatalf("expected one contributor, got %v", contributors)
	}

	server.height = 21
	recorder, body = server.do(http.MethodPost, "/campaigns/"+address+"/payout", "mallory", nil, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden payout for non-creator, got %d %v", recorder.Code, body)
	}
	recorder, body = server.do(http.MethodPost, "/campaigns/"+address+"/payout", "creator", nil, nil)
	if recorder.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("payout failed: %d %s", recorder.Code, recorder.Body.String())
	}
	instructions := body["instructions"].([]any)
	if len(instructions) != 1 || instructions[0].(map[string]any)["kind"] != "bank_transfer" {
		t.Fatalf("unexpected payout instructions %v", instructions)
	}
}

func TestRegistryListingAndConfig(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	first := server.createCampaign("creator-a")
	server.height = 2
	second := server.createCampaign("creator-b")

	recorder, body := server.do(http.MethodGet, "/registry/campaigns?page_size=10", "", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("listing failed: %d", recorder.Code)
	}
	campaigns := body["campaigns"].([]any)
	if len(campaigns) != 2 || body["count"].(float64) != 2 {
		t.Fatalf("unexpected listing %v", body)
	}
	if campaigns[0].(map[string]any)["address"] != second || campaigns[1].(map[string]any)["address"] != first {
		t.Fatalf("expected newest first, got %v", campaigns)
	}

	recorder, _ = server.do(http.MethodGet, "/registry/campaigns?page_size=0", "", nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for zero page size, got %d", recorder.Code)
	}

	recorder, body = server.do(http.MethodPost, "/registry/config", "creator-a", map[string]any{"deadman": 5}, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden config update, got %d %v", recorder.Code, body)
	}
	recorder, body = server.do(http.MethodPost, "/registry/config", testOwner, map[string]any{"deadman": 5}, nil)
	if recorder.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("config update failed: %d %s", recorder.Code, recorder.Body.String())
	}
	_, body = server.do(http.MethodGet, "/registry/config", "", nil, nil)
	if body["deadman"].(float64) != 5 {
		t.Fatalf("expected updated deadman, got %v", body)
	}
}

func TestPermitStatusQuery(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	address := server.createCampaign("creator")

	recorder, body := server.do(http.MethodPost, "/registry/permits", "creator", map[string]any{
		"permit_name": "dashboard",
		"permissions": []string{auth.PermissionStatus},
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("permit signing failed: %d %s", recorder.Code, recorder.Body.String())
	}
	permit := body["permit"].(string)

	recorder, body = server.do(http.MethodGet, "/campaigns/"+address+"/status-permit", "", nil, map[string]string{permitHeader: permit})
	if recorder.Code != http.StatusOK {
		t.Fatalf("permit query failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if body["viewer"] != "creator" || body["pledged_message"] != "thank you" {
		t.Fatalf("unexpected permit summary %v", body)
	}

	recorder, _ = server.do(http.MethodPost, "/registry/permits/revoke", "creator", map[string]any{"permit_name": "dashboard"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("revocation failed: %d", recorder.Code)
	}
	recorder, _ = server.do(http.MethodGet, "/campaigns/"+address+"/status-permit", "", nil, map[string]string{permitHeader: permit})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden after revocation, got %d", recorder.Code)
	}
}

func TestTokenAcknowledgementRequiresOperator(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	address := server.createCampaign("creator")
	recorder, _ := server.do(http.MethodPost, "/campaigns/"+address+"/token-ack", "creator", map[string]any{
		"request_id": "request-1",
		"token":      "token-1",
	}, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden acknowledgement, got %d", recorder.Code)
	}
	recorder, _ = server.do(http.MethodPost, "/campaigns/"+address+"/token-ack", testOwner, map[string]any{
		"request_id": "request-1",
		"token":      "token-1",
	}, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict for unknown request, got %d", recorder.Code)
	}
}

func TestUnknownCampaignReturnsNotFound(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	recorder, body := server.do(http.MethodGet, "/campaigns/missing", "", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
	if !strings.HasSuffix(body["error"].(string), "campaign_not_found") {
		t.Fatalf("unexpected error code %v", body)
	}
}

func TestRateLimitPerSender(t *testing.T) {
	server := newTestServer(t, rate.Limit(0.001), 1)
	address := server.createCampaign("creator")

	recorder, _ := server.do(http.MethodPost, "/campaigns/"+address+"/cancel", "creator", nil, nil)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limited, got %d", recorder.Code)
	}
	recorder, _ = server.do(http.MethodPost, "/campaigns/"+address+"/comments", "alice", map[string]any{"text": "go team"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected independent limiter per sender, got %d", recorder.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, rate.Inf, 10)
	recorder, _ := server.do(http.MethodGet, "/metrics", "", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "go_goroutines") {
		t.Fatalf("expected default collectors in metrics output")
	}
}
