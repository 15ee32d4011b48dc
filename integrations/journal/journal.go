package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"refundledger/core/events"
)

// Entry is one persisted ledger event.
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq         int64     `gorm:"uniqueIndex" json:"seq"`
	Type        string    `gorm:"index;not null" json:"type"`
	Participant string    `gorm:"index" json:"participant,omitempty"`
	Attributes  string    `gorm:"type:text;not null" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// TableName pins the table name independent of the struct name.
func (Entry) TableName() string { return "refund_events" }

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() map[string]string {
	out := map[string]string{}
	if e.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Attributes), &out)
	return out
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type        string
	Participant string
	Since       time.Time
	Limit       int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Journal appends ledger events to a SQL table. It satisfies events.Emitter
// so it can sit behind the engine's emitter fanout.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int64
}

// Open connects to dsn. DSNs starting with postgres:// or postgresql:// use
// the postgres driver, anything else is treated as a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("journal: dsn required")
	}
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// New migrates db and resumes sequence numbering from the last stored row.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	j := &Journal{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}
	var last Entry
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	j.seq = last.Seq
	return j, nil
}

// Emit persists evt. Failures are logged because emitters cannot fail the
// ledger operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append writes evt as a new row.
func (j *Journal) Append(ctx context.Context, evt events.Event) error {
	attrs := evt.Attributes()
	blob, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		j.seq++
		entry := Entry{
			ID:          uuid.New(),
			Seq:         j.seq,
			Type:        evt.EventType(),
			Participant: attrs["participant"],
			Attributes:  string(blob),
			CreatedAt:   j.now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			j.seq--
			return err
		}
		return nil
	})
}

// List returns entries matching filter in append order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Participant != "" {
		query = query.Where("participant = ?", filter.Participant)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var entries []Entry
	if err := query.Order("seq asc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
