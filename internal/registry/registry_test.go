package registry

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/amount"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/charter"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/hostenv"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

const (
	testRegistry = "registry-1"
	testOwner    = "owner"
	testDenom    = "uscrt"
)

type harness struct {
	t         *testing.T
	store     *ledger.Store
	service   *Service
	authority *auth.PermitAuthority
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(ledger.Models()...))

	store, err := ledger.NewStore(db)
	require.NoError(t, err)
	authority, err := auth.NewPermitAuthority(auth.PermitAuthorityConfig{
		SigningSecret: []byte("permit-secret"),
		Registry:      testRegistry,
		Clock:         func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	service, err := NewService(ServiceConfig{Permits: authority})
	require.NoError(t, err)
	require.NoError(t, service.Bootstrap(store, ledger.RegistryConfig{
		Address:           testRegistry,
		CodeHash:          "registry-hash",
		Owner:             testOwner,
		CampaignCodeID:    7,
		CampaignCodeHash:  "campaign-hash",
		Deadman:           10,
		CommissionNom:     amount.New(1),
		CommissionDenom:   amount.New(10),
		CommissionAddress: "platform",
		DefaultAsset:      testDenom,
		PledgeLimits:      []ledger.PledgeLimit{{Asset: testDenom, Minimum: amount.New(5), Maximum: amount.New(500)}},
	}))
	return &harness{t: t, store: store, service: service, authority: authority}
}

func (h *harness) exec(env hostenv.Env, command Command) (hostenv.Result, error) {
	h.t.Helper()
	env.Contract = testRegistry
	return h.service.Execute(h.store, env, command)
}

func terms() charter.Charter {
	return charter.Charter{
		Title:    "Build a thing",
		Goal:     amount.New(1000),
		Deadline: 100,
		Variant:  charter.VariantCommission,
		Asset:    testDenom,
	}
}

func TestCreateCampaignDispatchesInstantiation(t *testing.T) {
	h := newHarness(t)
	result, err := h.exec(hostenv.Env{
		Height: 3,
		Sender: "creator",
		Funds:  &hostenv.Funds{Asset: testDenom, Amount: amount.New(50)},
	}, CreateCampaign{Terms: terms()})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Len(t, result.Instructions, 2)

	fee, ok := result.Instructions[0].(hostenv.BankTransfer)
	require.True(t, ok)
	require.Equal(t, testOwner, fee.To)
	require.Equal(t, "50", fee.Amount.String())

	instantiate, ok := result.Instructions[1].(hostenv.InstantiateCampaign)
	require.True(t, ok)
	require.Equal(t, uint64(7), instantiate.CodeID)
	require.Equal(t, "campaign-hash", instantiate.CodeHash)
	require.Equal(t, CampaignLabel(testRegistry, 0, 3), instantiate.Label)
	require.Equal(t, CampaignAddress(instantiate.Label), instantiate.Address)
	require.Equal(t, "creator", instantiate.Init.Creator)
	require.Equal(t, testRegistry, instantiate.Init.Registry)
	require.Equal(t, uint64(10), instantiate.Init.Deadman)
	require.Equal(t, "50", instantiate.Init.Fee.Upfront.String())
	require.Equal(t, "5", instantiate.Init.MinimumPledge.String())
	require.Equal(t, "500", instantiate.Init.MaximumPledge.String())

	config, err := h.service.Config(h.store, testRegistry)
	require.NoError(t, err)
	require.True(t, config.Creating)
}

func TestCreateCampaignRejectsConcurrentCreation(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(hostenv.Env{Height: 3, Sender: "creator"}, CreateCampaign{Terms: terms()})
	require.NoError(t, err)

	_, err = h.exec(hostenv.Env{Height: 4, Sender: "creator"}, CreateCampaign{Terms: terms()})
	require.ErrorIs(t, err, ErrCreationInFlight)
}

func TestCreateCampaignRejectsFeeInForeignAsset(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(hostenv.Env{
		Height: 3,
		Sender: "creator",
		Funds:  &hostenv.Funds{Asset: "worthless", Amount: amount.New(1_000_000)},
	}, CreateCampaign{Terms: terms()})
	require.ErrorIs(t, err, charter.ErrValidation)

	config, err := h.service.Config(h.store, testRegistry)
	require.NoError(t, err)
	require.False(t, config.Creating)

	defaulted := terms()
	defaulted.Asset = ""
	result, err := h.exec(hostenv.Env{
		Height: 4,
		Sender: "creator",
		Funds:  &hostenv.Funds{Asset: testDenom, Amount: amount.New(50)},
	}, CreateCampaign{Terms: defaulted})
	require.NoError(t, err)
	instantiate, ok := result.Instructions[1].(hostenv.InstantiateCampaign)
	require.True(t, ok)
	require.Equal(t, testDenom, instantiate.Init.Asset)
	require.Equal(t, "50", instantiate.Init.Fee.Upfront.String())
}

func TestCreateCampaignValidatesTerms(t *testing.T) {
	h := newHarness(t)
	past := terms()
	past.Deadline = 2
	_, err := h.exec(hostenv.Env{Height: 3, Sender: "creator"}, CreateCampaign{Terms: past})
	require.ErrorIs(t, err, charter.ErrValidation)

	config, err := h.service.Config(h.store, testRegistry)
	require.NoError(t, err)
	require.False(t, config.Creating)
}

func TestRegisterAppendsEntry(t *testing.T) {
	h := newHarness(t)
	result, err := h.exec(hostenv.Env{Height: 3, Sender: "creator"}, CreateCampaign{Terms: terms()})
	require.NoError(t, err)
	address := result.Data["address"].(string)

	_, err = h.exec(hostenv.Env{Height: 3, Sender: "impostor"}, Register{Address: address, CodeHash: "campaign-hash"})
	require.ErrorIs(t, err, ErrUnauthorized)

	registered, err := h.exec(hostenv.Env{Height: 3, Sender: address}, Register{Address: address, CodeHash: "campaign-hash"})
	require.NoError(t, err)
	require.True(t, registered.Succeeded())

	config, err := h.service.Config(h.store, testRegistry)
	require.NoError(t, err)
	require.False(t, config.Creating)
	require.EqualValues(t, 1, config.CampaignCount)

	_, err = h.exec(hostenv.Env{Height: 4, Sender: address}, Register{Address: address, CodeHash: "campaign-hash"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestListCampaignsNewestFirst(t *testing.T) {
	h := newHarness(t)
	var addresses []string
	for height := uint64(3); height < 6; height++ {
		result, err := h.exec(hostenv.Env{Height: height, Sender: "creator"}, CreateCampaign{Terms: terms()})
		require.NoError(t, err)
		address := result.Data["address"].(string)
		_, err = h.exec(hostenv.Env{Height: height, Sender: address}, Register{Address: address, CodeHash: "campaign-hash"})
		require.NoError(t, err)
		addresses = append(addresses, address)
	}

	page, err := h.service.ListCampaigns(h.store, testRegistry, 0, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Count)
	require.Len(t, page.Campaigns, 2)
	require.Equal(t, addresses[2], page.Campaigns[0].Address)
	require.EqualValues(t, 2, page.Campaigns[0].ID)
	require.Equal(t, addresses[1], page.Campaigns[1].Address)

	rest, err := h.service.ListCampaigns(h.store, testRegistry, 1, 2)
	require.NoError(t, err)
	require.Len(t, rest.Campaigns, 1)
	require.Equal(t, addresses[0], rest.Campaigns[0].Address)
}

func TestUpdateConfigRequiresOwner(t *testing.T) {
	h := newHarness(t)
	deadman := uint64(42)
	_, err := h.exec(hostenv.Env{Height: 1, Sender: "creator"}, UpdateConfig{Deadman: &deadman})
	require.ErrorIs(t, err, ErrUnauthorized)

	result, err := h.exec(hostenv.Env{Height: 1, Sender: testOwner}, UpdateConfig{Deadman: &deadman})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, "Updated deadman", result.Message)

	nothing, err := h.exec(hostenv.Env{Height: 1, Sender: testOwner}, UpdateConfig{})
	require.NoError(t, err)
	require.False(t, nothing.Succeeded())

	zero := amount.Zero()
	_, err = h.exec(hostenv.Env{Height: 1, Sender: testOwner}, UpdateConfig{CommissionDenom: &zero})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidatePermitHonorsRevocationAndScope(t *testing.T) {
	h := newHarness(t)
	permit, err := h.authority.Sign("alice", "reader", []string{auth.PermissionStatus}, []string{"campaign-a"})
	require.NoError(t, err)

	owner, err := h.service.ValidatePermit(h.store, testRegistry, permit, "campaign-a")
	require.NoError(t, err)
	require.Equal(t, "alice", owner)

	_, err = h.service.ValidatePermit(h.store, testRegistry, permit, "campaign-b")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.exec(hostenv.Env{Height: 1, Sender: "alice"}, RevokePermit{Name: "reader"})
	require.NoError(t, err)
	_, err = h.service.ValidatePermit(h.store, testRegistry, permit, "campaign-a")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.service.ValidatePermit(h.store, testRegistry, "garbage", "campaign-a")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCampaignAddressIsDeterministic(t *testing.T) {
	label := CampaignLabel(testRegistry, 4, 12)
	require.Equal(t, testRegistry+"-Campaign-4-MTI=", label)
	require.Equal(t, CampaignAddress(label), CampaignAddress(label))
	require.NotEqual(t, CampaignAddress(label), CampaignAddress(CampaignLabel(testRegistry, 5, 12)))
}
