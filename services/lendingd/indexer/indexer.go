package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftlend/core/events"
	"nftlend/core/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"index;not null"`
	PoolID     *uint64   `gorm:"index"`
	LoanID     *uint64   `gorm:"index"`
	Attributes string    `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

// Event decodes the stored payload.
func (r EventRecord) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Filter narrows a history query.
type Filter struct {
	Type   string
	PoolID *uint64
	After  uint64
	Limit  int
}

// Indexer persists every emitted payload for history queries.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to dsn. postgres:// and postgresql:// use the postgres
// driver; sqlite:<path> uses the pure Go sqlite driver.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, log)
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return postgres.Open(trimmed), nil
	case strings.HasPrefix(trimmed, "sqlite:"):
		path := strings.TrimPrefix(trimmed, "sqlite:")
		if path == "" {
			return nil, errors.New("indexer: sqlite path required")
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("indexer: unsupported dsn")
	}
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	idx := &Indexer{db: db, logger: log, now: time.Now}
	var last EventRecord
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: load cursor: %w", err)
	}
	idx.seq = last.Seq
	return idx, nil
}

// Emit implements events.Emitter. Failures are logged; the ledger operation
// that produced the event has already committed.
func (i *Indexer) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	if _, err := i.Append(context.Background(), payload.Event()); err != nil {
		i.logger.Error("index event", slog.String("type", payload.EventType()), slog.Any("error", err))
	}
}

// Append stores evt and returns its record.
func (i *Indexer) Append(ctx context.Context, evt *types.Event) (*EventRecord, error) {
	encoded, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	record := &EventRecord{
		ID:         uuid.New(),
		Seq:        i.seq + 1,
		Type:       evt.Type,
		PoolID:     parseID(evt.Attributes["poolId"]),
		LoanID:     parseID(evt.Attributes["loanId"]),
		Attributes: string(encoded),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("indexer: insert: %w", err)
	}
	i.seq = record.Seq
	return record, nil
}

// Query returns records matching filter in emission order.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := i.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", filter.After)
	if eventType := strings.TrimSpace(filter.Type); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	if filter.PoolID != nil {
		query = query.Where("pool_id = ?", *filter.PoolID)
	}
	var records []EventRecord
	if err := query.Order("seq asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseID(raw string) *uint64 {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}
