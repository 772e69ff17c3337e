package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"nftmarket/core"
)

// Entry is one committed event row.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text;not null"`
	Timestamp  int64     `gorm:"not null"`
	CreatedAt  time.Time
}

func (Entry) TableName() string { return "marketplace_events" }

func (e Entry) update() (core.EventUpdate, error) {
	var attrs map[string]string
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return core.EventUpdate{}, fmt.Errorf("journal: decode sequence %d: %w", e.Sequence, err)
	}
	return core.EventUpdate{
		Sequence:   e.Sequence,
		Cursor:     core.FormatCursor(e.Sequence),
		Type:       e.Type,
		Attributes: attrs,
		Timestamp:  e.Timestamp,
	}, nil
}

// Journal persists committed events in a relational store so the event
// stream can be replayed after a restart.
type Journal struct {
	db *gorm.DB
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Persist stores a batch of updates in one transaction. Sequences already
// present are skipped.
func (j *Journal) Persist(ctx context.Context, updates []core.EventUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	rows := make([]Entry, 0, len(updates))
	for _, update := range updates {
		attrs, err := json.Marshal(update.Attributes)
		if err != nil {
			return fmt.Errorf("journal: encode attributes: %w", err)
		}
		rows = append(rows, Entry{
			ID:         uuid.New(),
			Sequence:   update.Sequence,
			Type:       update.Type,
			Attributes: string(attrs),
			Timestamp:  update.Timestamp,
		})
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sequence"}},
			DoNothing: true,
		}).Create(&rows).Error
	})
}

// Load returns up to limit of the most recent entries in sequence order. A
// non-positive limit loads everything.
func (j *Journal) Load(ctx context.Context, limit int) ([]core.EventUpdate, error) {
	var rows []Entry
	query := j.db.WithContext(ctx).Order("sequence DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: load: %w", err)
	}
	updates := make([]core.EventUpdate, len(rows))
	for i, row := range rows {
		update, err := row.update()
		if err != nil {
			return nil, err
		}
		updates[len(rows)-1-i] = update
	}
	return updates, nil
}

// ByType returns up to limit stored events of eventType after the sequence,
// oldest first. A non-positive limit returns every match.
func (j *Journal) ByType(ctx context.Context, eventType string, after uint64, limit int) ([]core.EventUpdate, error) {
	var rows []Entry
	query := j.db.WithContext(ctx).
		Where("type = ? AND sequence > ?", eventType, after).
		Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("journal: query %s: %w", eventType, err)
	}
	updates := make([]core.EventUpdate, 0, len(rows))
	for _, row := range rows {
		update, err := row.update()
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
