package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

const (
	migrationBackfillTotalRaised   = "2026-09-14_backfill_total_raised"
	migrationNormalizeRewardClaims = "2026-09-28_normalize_reward_claims"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTotalRaised, apply: backfillTotalRaised},
		{name: migrationNormalizeRewardClaims, apply: normalizeRewardClaims},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillTotalRaised copies total into total_raised for campaigns paid out before the
// column was written at payout.
func backfillTotalRaised(db *gorm.DB) error {
	return db.Model(&ledger.Campaign{}).
		Where("paid_out = ? AND (total_raised = '' OR total_raised = '0')", true).
		Update("total_raised", gorm.Expr("total")).Error
}

// normalizeRewardClaims gives funders stored with an empty claim vector a single slot.
func normalizeRewardClaims(db *gorm.DB) error {
	return db.Model(&ledger.Funder{}).
		Where("reward_claimed = ''").
		Update("reward_claimed", "0").Error
}
