package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ekyc/internal/logging"
)

// DispositionLog is one persisted terminal outcome of a verification session.
type DispositionLog struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"column:session_id;index;size:64"`
	UserID    string    `gorm:"column:user_id;size:64"`
	Status    string    `gorm:"column:status;size:32"`
	Verified  bool      `gorm:"column:verified"`
	Distance  float64   `gorm:"column:distance"`
	Reason    string    `gorm:"column:reason;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (DispositionLog) TableName() string {
	return "disposition_logs"
}

// DispositionRepository provides persistence APIs for disposition logs.
type DispositionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewDispositionRepository creates a new repository instance.
func NewDispositionRepository(db *gorm.DB, logger *zap.Logger) *DispositionRepository {
	return &DispositionRepository{
		db:             db,
		logger:         logger.Named("disposition_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *DispositionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&DispositionLog{})
}

// Record persists one disposition log entry.
func (r *DispositionRepository) Record(ctx context.Context, log *DispositionLog) error {
	return r.executeWithRetry(ctx, "repository.record_disposition", log.SessionID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindBySession retrieves all dispositions recorded for a session, newest
// first.
func (r *DispositionRepository) FindBySession(ctx context.Context, sessionID string) ([]*DispositionLog, error) {
	var logs []*DispositionLog
	err := r.executeWithRetry(ctx, "repository.find_by_session", sessionID, func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *DispositionRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
