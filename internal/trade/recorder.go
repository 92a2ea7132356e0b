// Package trade persists executed trades. The store is append-only: records
// are immutable once written and no update or delete operation exists.
package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/pkg/errors"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Recorder is the append-only trade store
type Recorder struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewRecorder creates a new trade recorder
func NewRecorder(logger *zap.Logger, db *gorm.DB) *Recorder {
	return &Recorder{logger: logger, db: db}
}

// SaveTx appends a trade record inside a caller-owned transaction. ID and
// ExecutionDate are stamped here so every record carries them exactly once.
func (r *Recorder) SaveTx(tx *gorm.DB, t *models.Trade) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.ExecutionDate.IsZero() {
		t.ExecutionDate = time.Now()
	}
	if err := tx.Create(t).Error; err != nil {
		return errors.New("failed to save trade").Wrap(err)
	}
	return nil
}

// ListByOrder returns all trades referencing the order on either side
func (r *Recorder) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.WithContext(ctx).
		Where("buy_order_id = ? OR sell_order_id = ?", orderID, orderID).
		Order("execution_date ASC").
		Find(&trades).Error
	if err != nil {
		return nil, errors.New("failed to list trades").Wrap(err)
	}
	return trades, nil
}

// ListByAsset returns all trades executed in one asset code
func (r *Recorder) ListByAsset(ctx context.Context, assetCode string) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := r.db.WithContext(ctx).
		Where("asset_code = ?", assetCode).
		Order("execution_date ASC").
		Find(&trades).Error
	if err != nil {
		return nil, errors.New("failed to list trades").Wrap(err)
	}
	return trades, nil
}
