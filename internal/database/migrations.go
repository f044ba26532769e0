package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeEventDates = "2026-10-01_normalize_event_dates"

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
		{name: migrationNormalizeEventDates, apply: normalizeEventDates},
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
		if err := migration.apply(db); err != nil {
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

// normalizeEventDates trims timestamps such as 2025-03-15T18:00:00Z down to
// the calendar date so event ordering compares like with like.
func normalizeEventDates(db *gorm.DB) error {
	return db.Model(&records.Event{}).
		Where("length(event_date) > 10 AND event_date GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]*'").
		Update("event_date", gorm.Expr("substr(event_date, 1, 10)")).Error
}
