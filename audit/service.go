package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/guildhall/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry holds one guild mutation to be logged.
type AuditEntry struct {
	TraceID    string
	UserID     string
	GuildID    string
	Action     string
	Request    interface{}
	Response   interface{}
	Error      string
	IP         string
	DurationMs int
}

// Config tunes the background writer. Zero fields take the defaults.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return c
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	cfg    Config
	ch     chan *model.AuditLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service with default settings and starts its
// background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithConfig(db, Config{}, logger)
}

// NewWithConfig is New with explicit buffer, batch and flush settings.
func NewWithConfig(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	svc := &Service{
		db:     db,
		cfg:    cfg,
		ch:     make(chan *model.AuditLog, cfg.BufferSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. Entries logged after Stop
// are dropped.
func (svc *Service) Log(entry AuditEntry) {
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit service stopped, dropping entry", zap.String("action", entry.Action))
		return
	default:
	}

	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		GuildID:    entry.GuildID,
		Action:     entry.Action,
		Request:    marshal(entry.Request),
		Response:   marshal(entry.Response),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("guild_id", entry.GuildID))
	}
}

func marshal(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	GuildID string
	UserID  string
	Action  string
	Limit   int
}

// Recent returns the newest persisted entries matching f.
func (svc *Service) Recent(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	tx := svc.db.WithContext(ctx).Model(&model.AuditLog{})
	if f.GuildID != "" {
		tx = tx.Where("guild_id = ?", f.GuildID)
	}
	if f.UserID != "" {
		tx = tx.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		tx = tx.Where("action = ?", f.Action)
	}
	var logs []model.AuditLog
	err := tx.Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= svc.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
