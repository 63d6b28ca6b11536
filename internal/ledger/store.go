package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrMissingDatabase indicates a store was built without a database handle.
	ErrMissingDatabase = errors.New("ledger: database handle is required")
	// ErrInvalidPageSize rejects ranged reads with a page size below one.
	ErrInvalidPageSize = errors.New("ledger: page size must be at least 1")
)

// Store reads and writes ledger rows. A Store returned by Transaction is bound to that
// transaction.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrMissingDatabase
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside one database transaction. Any returned error rolls back
// every write made through the transactional store.
func (s *Store) Transaction(ctx context.Context, fn func(*Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) locked() *gorm.DB {
	return s.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func window(page, pageSize uint32) (int, int, error) {
	if pageSize < 1 {
		return 0, 0, ErrInvalidPageSize
	}
	offset := uint64(page) * uint64(pageSize)
	return int(offset), int(pageSize), nil
}

// CreateCampaign inserts a new campaign row.
func (s *Store) CreateCampaign(campaign *Campaign) error {
	return s.db.Create(campaign).Error
}

// LoadCampaign reads a campaign and locks its row for the rest of the transaction.
func (s *Store) LoadCampaign(address string) (Campaign, error) {
	var campaign Campaign
	if err := s.locked().Where("address = ?", address).Take(&campaign).Error; err != nil {
		return Campaign{}, notFound(err)
	}
	return campaign, nil
}

// SaveCampaign persists every column of a campaign.
func (s *Store) SaveCampaign(campaign *Campaign) error {
	return s.db.Save(campaign).Error
}

// CampaignsDueForExpiry lists fundraising campaigns whose deadline is before height.
func (s *Store) CampaignsDueForExpiry(height uint64, limit int) ([]string, error) {
	var addresses []string
	err := s.db.Model(&Campaign{}).
		Where("status = ? AND deadline < ?", StatusFundraising, height).
		Order("deadline ASC").
		Limit(limit).
		Pluck("address", &addresses).Error
	return addresses, err
}

// LoadFunder returns the funder row of address, or ErrNotFound.
func (s *Store) LoadFunder(campaignAddress, address string) (Funder, error) {
	var funder Funder
	if err := s.locked().Where("campaign_address = ? AND address = ?", campaignAddress, address).Take(&funder).Error; err != nil {
		return Funder{}, notFound(err)
	}
	return funder, nil
}

// SaveFunder upserts a funder row.
func (s *Store) SaveFunder(funder *Funder) error {
	return s.db.Save(funder).Error
}

// ListFunders returns one page of funders in insertion order.
func (s *Store) ListFunders(campaignAddress string, page, pageSize uint32) ([]Funder, error) {
	offset, limit, err := window(page, pageSize)
	if err != nil {
		return nil, err
	}
	var funders []Funder
	err = s.db.Where("campaign_address = ?", campaignAddress).
		Order("idx ASC").
		Offset(offset).
		Limit(limit).
		Find(&funders).Error
	return funders, err
}

// LoadCreatorClaim returns the creator claim row of beneficiary, or ErrNotFound.
func (s *Store) LoadCreatorClaim(campaignAddress, beneficiary string) (CreatorClaim, error) {
	var claim CreatorClaim
	if err := s.locked().Where("campaign_address = ? AND beneficiary = ?", campaignAddress, beneficiary).Take(&claim).Error; err != nil {
		return CreatorClaim{}, notFound(err)
	}
	return claim, nil
}

// SaveCreatorClaim upserts a creator claim row.
func (s *Store) SaveCreatorClaim(claim *CreatorClaim) error {
	return s.db.Save(claim).Error
}

// AppendComment inserts a comment row.
func (s *Store) AppendComment(comment *Comment) error {
	return s.db.Create(comment).Error
}

// ListComments returns one page of comments in insertion order.
func (s *Store) ListComments(campaignAddress string, page, pageSize uint32) ([]Comment, error) {
	offset, limit, err := window(page, pageSize)
	if err != nil {
		return nil, err
	}
	var comments []Comment
	err = s.db.Where("campaign_address = ?", campaignAddress).
		Order("idx ASC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	return comments, err
}

// LoadSpamFlag returns the flag of address; a missing row reads as not flagged.
func (s *Store) LoadSpamFlag(campaignAddress, address string) (SpamFlag, error) {
	var flag SpamFlag
	err := s.locked().Where("campaign_address = ? AND address = ?", campaignAddress, address).Take(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SpamFlag{CampaignAddress: campaignAddress, Address: address}, nil
	}
	if err != nil {
		return SpamFlag{}, err
	}
	return flag, nil
}

// SaveSpamFlag upserts a spam flag row.
func (s *Store) SaveSpamFlag(flag *SpamFlag) error {
	return s.db.Save(flag).Error
}

// LoadViewingKey returns the viewing key row of address, or ErrNotFound.
func (s *Store) LoadViewingKey(campaignAddress, address string) (ViewingKey, error) {
	var key ViewingKey
	if err := s.db.Where("campaign_address = ? AND address = ?", campaignAddress, address).Take(&key).Error; err != nil {
		return ViewingKey{}, notFound(err)
	}
	return key, nil
}

// SaveViewingKey upserts a viewing key row.
func (s *Store) SaveViewingKey(key *ViewingKey) error {
	return s.db.Save(key).Error
}

// CreatePendingTokenRequest inserts a pending token issuance request.
func (s *Store) CreatePendingTokenRequest(request *PendingTokenRequest) error {
	return s.db.Create(request).Error
}

// LoadPendingTokenRequest returns a pending request by id, or ErrNotFound.
func (s *Store) LoadPendingTokenRequest(requestID string) (PendingTokenRequest, error) {
	var request PendingTokenRequest
	if err := s.locked().Where("request_id = ?", requestID).Take(&request).Error; err != nil {
		return PendingTokenRequest{}, notFound(err)
	}
	return request, nil
}

// SavePendingTokenRequest persists a pending request.
func (s *Store) SavePendingTokenRequest(request *PendingTokenRequest) error {
	return s.db.Save(request).Error
}

// LoadRegistryConfig reads and locks the configuration row of a registry.
func (s *Store) LoadRegistryConfig(address string) (RegistryConfig, error) {
	var config RegistryConfig
	if err := s.locked().Where("address = ?", address).Take(&config).Error; err != nil {
		return RegistryConfig{}, notFound(err)
	}
	return config, nil
}

// SaveRegistryConfig upserts a registry configuration row.
func (s *Store) SaveRegistryConfig(config *RegistryConfig) error {
	return s.db.Save(config).Error
}

// AppendRegistryEntry inserts a registry entry row.
func (s *Store) AppendRegistryEntry(entry *RegistryEntry) error {
	return s.db.Create(entry).Error
}

// ListRegistryEntries returns one page of entries, newest first, with the total count.
func (s *Store) ListRegistryEntries(registry string, page, pageSize uint32) ([]RegistryEntry, int64, error) {
	offset, limit, err := window(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	var count int64
	if err := s.db.Model(&RegistryEntry{}).Where("registry = ?", registry).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var entries []RegistryEntry
	err = s.db.Where("registry = ?", registry).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, count, err
}

// RevokePermit records a revoked permit; revoking twice is a no-op.
func (s *Store) RevokePermit(permit *RevokedPermit) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(permit).Error
}

// IsPermitRevoked reports whether the named permit of owner is revoked.
func (s *Store) IsPermitRevoked(registry, owner, name string) (bool, error) {
	var count int64
	err := s.db.Model(&RevokedPermit{}).
		Where("registry = ? AND owner = ? AND name = ?", registry, owner, name).
		Count(&count).Error
	return count > 0, err
}

// AppendOutbox inserts an outbox entry and fills its sequence.
func (s *Store) AppendOutbox(entry *OutboxEntry) error {
	if entry == nil {
		return fmt.Errorf("ledger: nil outbox entry")
	}
	return s.db.Create(entry).Error
}

// ListOutbox returns outbox entries after sequence in emission order.
func (s *Store) ListOutbox(afterSequence uint64, limit int) ([]OutboxEntry, error) {
	var entries []OutboxEntry
	err := s.db.Where("sequence > ?", afterSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
